//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package runner provides the top-level driver that runs an agent against a
// session.
package runner

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/artifact"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/memory"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
	"trpc.group/trpc-go/trpc-adk-go/session/inmemory"
	"trpc.group/trpc-go/trpc-adk-go/telemetry/trace"
)

// authorUser marks events carrying end-user input.
const authorUser = "user"

// ErrNoResponse is returned by RunText when the agent produced no textual
// response.
var ErrNoResponse = errors.New("agent produced no response")

// Option is a function that configures a Runner.
type Option func(*Options)

// Options is the options for the Runner.
type Options struct {
	sessionService  session.Service
	artifactService artifact.Service
	memoryService   memory.Service
}

// WithSessionService sets the session service to use. Defaults to a fresh
// in-memory service.
func WithSessionService(service session.Service) Option {
	return func(opts *Options) {
		opts.sessionService = service
	}
}

// WithArtifactService sets the artifact service exposed to agents and tools.
func WithArtifactService(service artifact.Service) Option {
	return func(opts *Options) {
		opts.artifactService = service
	}
}

// WithMemoryService sets the memory service exposed to agents and tools.
func WithMemoryService(service memory.Service) Option {
	return func(opts *Options) {
		opts.memoryService = service
	}
}

// Runner drives one agent tree against sessions of one application. It
// resolves the session, commits events through the session service, and
// never retries a failed run on its own.
type Runner interface {
	// Run streams the events of one invocation. Every completed event is
	// committed to the session before it is forwarded; the stream closes
	// with a runner-completion event.
	Run(ctx context.Context, userID, sessionID string, message model.Content,
		runOpts ...agent.RunOption) (<-chan *event.Event, error)

	// RunAll collects the events of one invocation. It returns the events
	// produced so far together with the first error event converted to an
	// ExecutionError, if any.
	RunAll(ctx context.Context, userID, sessionID string, message model.Content,
		runOpts ...agent.RunOption) ([]*event.Event, error)

	// RunText returns the text of the last final response. It fails with the
	// first error event's ExecutionError, or ErrNoResponse when the run
	// finished without any textual response.
	RunText(ctx context.Context, userID, sessionID string, message model.Content,
		runOpts ...agent.RunOption) (string, error)
}

type runner struct {
	appName         string
	agent           agent.Agent
	sessionService  session.Service
	artifactService artifact.Service
	memoryService   memory.Service
}

// NewRunner creates a new Runner for the given application and root agent.
func NewRunner(appName string, a agent.Agent, opts ...Option) Runner {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.sessionService == nil {
		options.sessionService = inmemory.NewSessionService()
	}
	return &runner{
		appName:         appName,
		agent:           a,
		sessionService:  options.sessionService,
		artifactService: options.artifactService,
		memoryService:   options.memoryService,
	}
}

// Run implements the Runner interface.
func (r *runner) Run(
	ctx context.Context,
	userID string,
	sessionID string,
	message model.Content,
	runOpts ...agent.RunOption,
) (<-chan *event.Event, error) {
	ctx, span := trace.Tracer.Start(ctx, "invocation")
	defer span.End()

	key := session.Key{AppName: r.appName, UserID: userID, SessionID: sessionID}
	sess, err := r.sessionService.GetSession(ctx, key)
	if errors.Is(err, session.ErrSessionNotFound) {
		sess, err = r.sessionService.CreateSession(ctx, key, session.StateMap{})
	}
	if err != nil {
		return nil, err
	}

	invocationID := "invocation-" + uuid.NewString()

	// The user turn is committed before the agent sees it, so the history
	// the agent reads already contains the triggering message.
	if len(message.Parts) > 0 {
		userEvent := event.New(invocationID, authorUser,
			event.WithResponse(&model.Response{Content: &message}))
		if err := r.sessionService.AppendEvent(ctx, sess, userEvent); err != nil {
			return nil, err
		}
	}

	var ro agent.RunOptions
	for _, opt := range runOpts {
		opt(&ro)
	}
	invocation := agent.NewInvocation(
		agent.WithInvocationID(invocationID),
		agent.WithInvocationAgent(r.agent),
		agent.WithInvocationSession(sess),
		agent.WithInvocationState(session.NewState(sess.State)),
		agent.WithInvocationMessage(message),
		agent.WithInvocationRunOptions(ro),
		agent.WithInvocationArtifactService(r.artifactService),
		agent.WithInvocationMemoryService(r.memoryService),
	)
	ctx = agent.NewInvocationContext(ctx, invocation)

	agentChan, err := r.agent.Run(ctx, invocation)
	if err != nil {
		return nil, err
	}

	processedChan := make(chan *event.Event)
	go r.forwardEvents(ctx, sess, invocationID, agentChan, processedChan)
	return processedChan, nil
}

// forwardEvents commits completed events and forwards everything, closing
// the stream with a runner-completion event.
func (r *runner) forwardEvents(
	ctx context.Context,
	sess *session.Session,
	invocationID string,
	agentChan <-chan *event.Event,
	processedChan chan<- *event.Event,
) {
	defer close(processedChan)

	for agentEvent := range agentChan {
		if shouldCommit(agentEvent) {
			if err := r.sessionService.AppendEvent(ctx, sess, agentEvent); err != nil {
				log.Errorf("runner %s: append event to session %s: %v", r.appName, sess.ID, err)
			}
		}
		select {
		case processedChan <- agentEvent:
		case <-ctx.Done():
			return
		}
	}

	completion := event.New(invocationID, r.appName,
		event.WithObject(model.ObjectTypeRunnerCompletion))
	completion.TurnComplete = true
	if err := r.sessionService.AppendEvent(ctx, sess, completion); err != nil {
		log.Errorf("runner %s: append completion event to session %s: %v", r.appName, sess.ID, err)
	}
	select {
	case processedChan <- completion:
	case <-ctx.Done():
	}
}

// shouldCommit reports whether the event belongs in the session history.
// Partial chunks and error notices stay on the stream only.
func shouldCommit(evt *event.Event) bool {
	if evt == nil {
		return false
	}
	if len(evt.StateDelta) > 0 {
		return true
	}
	return evt.Response != nil && !evt.Response.Partial && evt.Response.Content != nil
}

// RunAll implements the Runner interface.
func (r *runner) RunAll(
	ctx context.Context,
	userID string,
	sessionID string,
	message model.Content,
	runOpts ...agent.RunOption,
) ([]*event.Event, error) {
	eventChan, err := r.Run(ctx, userID, sessionID, message, runOpts...)
	if err != nil {
		return nil, err
	}
	var events []*event.Event
	var firstErr error
	for evt := range eventChan {
		events = append(events, evt)
		if firstErr == nil && evt.Response != nil && evt.Error != nil {
			firstErr = agent.NewExecutionError(evt.Author, errors.New(evt.Error.Message))
		}
	}
	return events, firstErr
}

// RunText implements the Runner interface.
func (r *runner) RunText(
	ctx context.Context,
	userID string,
	sessionID string,
	message model.Content,
	runOpts ...agent.RunOption,
) (string, error) {
	events, err := r.RunAll(ctx, userID, sessionID, message, runOpts...)
	if err != nil {
		return "", err
	}
	var text string
	var found bool
	for _, evt := range events {
		if evt.Response == nil || evt.Response.Partial || evt.Content == nil {
			continue
		}
		if t := evt.Content.Text(); t != "" && evt.Author != authorUser {
			text = t
			found = true
		}
	}
	if !found {
		return "", ErrNoResponse
	}
	return text, nil
}

// Default identifiers for one-shot runs.
const (
	defaultAppName   = "app"
	defaultUserID    = "user"
	defaultSessionID = "session"
)

// RunAgent runs an agent once against an ephemeral in-memory session and
// returns its final textual response.
func RunAgent(ctx context.Context, a agent.Agent, message string, runOpts ...agent.RunOption) (string, error) {
	service := inmemory.NewSessionService()
	defer service.Close()
	r := NewRunner(defaultAppName, a, WithSessionService(service))
	return r.RunText(ctx, defaultUserID, defaultSessionID,
		model.NewUserContent(model.NewTextPart(message)), runOpts...)
}
