//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package agent wraps an agent as a callable tool, so a coordinator agent can
// invoke specialized sub-agents through its normal tool surface.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/runner"
	"trpc.group/trpc-go/trpc-adk-go/session/inmemory"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Identifiers for the isolated fallback run.
const (
	isolatedUserID    = "tool_user"
	isolatedSessionID = "tool_session"
)

// Tool wraps an agent as a tool. The wrapped agent's name and description
// become the tool declaration; the tool result is the agent's final textual
// response.
type Tool struct {
	agent             agent.Agent
	skipSummarization bool
	streamInner       bool
	forwardArtifacts  bool
	timeout           time.Duration
	name              string
	description       string
	inputSchema       *tool.Schema
	outputSchema      *tool.Schema
}

var _ tool.CallableTool = (*Tool)(nil)

// Option is a function that configures an agent tool.
type Option func(*options)

type options struct {
	skipSummarization bool
	streamInner       bool
	forwardArtifacts  bool
	timeout           time.Duration
}

// WithSkipSummarization sets whether the outer agent should answer with the
// raw tool output instead of summarizing it. The preference is raised through
// the tool actions of the calling flow.
func WithSkipSummarization(skip bool) Option {
	return func(opts *options) {
		opts.skipSummarization = skip
	}
}

// WithStreamInner controls whether the inner agent's completed events are
// appended to the shared session, making the inner conversation part of the
// parent transcript. Off, the inner run stays private to the tool call.
func WithStreamInner(enabled bool) Option {
	return func(opts *options) {
		opts.streamInner = enabled
	}
}

// WithForwardArtifacts controls whether the inner agent can reach the
// caller's artifact service. On by default.
func WithForwardArtifacts(forward bool) Option {
	return func(opts *options) {
		opts.forwardArtifacts = forward
	}
}

// WithTimeout bounds the inner agent run. A run that exceeds the deadline
// fails with tool.ErrTimeout. Zero means no bound beyond the caller's
// context.
func WithTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.timeout = d
	}
}

// NewTool creates a tool from the given agent.
//
// The tool name is the agent's name, so it must comply with the naming rules
// of the model API in use; most enforce ^[a-zA-Z0-9_-]+$.
func NewTool(a agent.Agent, opts ...Option) *Tool {
	options := &options{forwardArtifacts: true}
	for _, opt := range opts {
		opt(options)
	}
	info := a.Info()
	return &Tool{
		agent:             a,
		skipSummarization: options.skipSummarization,
		streamInner:       options.streamInner,
		forwardArtifacts:  options.forwardArtifacts,
		timeout:           options.timeout,
		name:              info.Name,
		description:       info.Description,
		inputSchema: &tool.Schema{
			Type:        "object",
			Description: "Input for the agent tool",
			Properties: map[string]*tool.Schema{
				"request": {
					Type:        "string",
					Description: "The request to send to the agent",
				},
			},
			Required: []string{"request"},
		},
		outputSchema: &tool.Schema{
			Type:        "string",
			Description: "The response from the agent",
		},
	}
}

// Call runs the wrapped agent on the request and returns its final textual
// response. The agent runs inside the parent invocation when one is present,
// otherwise isolated against an ephemeral in-memory session.
func (at *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	if at.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, at.timeout)
		defer cancel()
	}
	if at.skipSummarization {
		if actions, ok := agent.ToolActionsFromContext(ctx); ok {
			actions.SkipSummarization = true
		}
	}

	message := requestMessage(jsonArgs)
	var text string
	var err error
	if parentInv, ok := agent.InvocationFromContext(ctx); ok && parentInv != nil && parentInv.Session != nil {
		text, err = at.callInParentInvocation(ctx, parentInv, message)
	} else {
		text, err = at.callWithIsolatedRunner(ctx, message)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, tool.NewError(at.name, "agent run exceeded the timeout", tool.ErrTimeout)
	}
	if err != nil {
		return nil, err
	}
	return text, nil
}

// requestMessage extracts the request text from the declared {"request":...}
// shape. Anything else passes through verbatim so loosely prompted models
// still reach the agent.
func requestMessage(jsonArgs []byte) model.Content {
	var input struct {
		Request string `json:"request"`
	}
	if err := json.Unmarshal(jsonArgs, &input); err == nil && input.Request != "" {
		return model.NewUserContent(model.NewTextPart(input.Request))
	}
	return model.NewUserContent(model.NewTextPart(string(jsonArgs)))
}

// callInParentInvocation runs the agent on a branch of the parent invocation.
// The shared session gives the inner agent the parent transcript; the unique
// branch keeps concurrent tool calls apart.
func (at *Tool) callInParentInvocation(
	ctx context.Context,
	parentInv *agent.Invocation,
	message model.Content,
) (string, error) {
	branch := at.name + "-" + uuid.NewString()
	if parentInv.Branch != "" {
		branch = parentInv.Branch + "." + branch
	}
	opts := []agent.InvocationOption{
		agent.WithInvocationAgent(at.agent),
		agent.WithInvocationMessage(message),
		agent.WithInvocationBranch(branch),
	}
	if !at.forwardArtifacts {
		opts = append(opts, agent.WithInvocationArtifactService(nil))
	}
	subInv := parentInv.Clone(opts...)

	eventChan, err := at.agent.Run(agent.NewInvocationContext(ctx, subInv), subInv)
	if err != nil {
		return "", fmt.Errorf("run agent %s: %w", at.name, err)
	}
	return at.collectResponse(subInv, eventChan)
}

// callWithIsolatedRunner runs the agent against an ephemeral in-memory
// session when no parent invocation is available.
func (at *Tool) callWithIsolatedRunner(ctx context.Context, message model.Content) (string, error) {
	service := inmemory.NewSessionService()
	defer service.Close()
	opts := []runner.Option{runner.WithSessionService(service)}
	if at.forwardArtifacts {
		if parentInv, ok := agent.InvocationFromContext(ctx); ok && parentInv != nil && parentInv.ArtifactService != nil {
			opts = append(opts, runner.WithArtifactService(parentInv.ArtifactService))
		}
	}
	r := runner.NewRunner(at.name, at.agent, opts...)
	eventChan, err := r.Run(ctx, isolatedUserID, isolatedSessionID, message)
	if err != nil {
		return "", fmt.Errorf("run agent %s: %w", at.name, err)
	}
	return at.collectResponse(nil, eventChan)
}

// collectResponse drains the agent stream and concatenates the final model
// texts. The stream is always consumed to the end so the producer never
// blocks; the first error event fails the call. With streamInner on,
// completed events join the shared session history.
func (at *Tool) collectResponse(subInv *agent.Invocation, eventChan <-chan *event.Event) (string, error) {
	var sb strings.Builder
	var firstErr error
	for evt := range eventChan {
		if evt.Response != nil && evt.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("agent %s: %s", at.name, evt.Error.Message)
			}
			continue
		}
		if evt.Response == nil || evt.Response.Partial || evt.Content == nil {
			continue
		}
		// Routing notices are plumbing, not content.
		if evt.Object == model.ObjectTypeTransfer {
			continue
		}
		if at.streamInner && subInv != nil && subInv.Session != nil {
			subInv.Session.Events = append(subInv.Session.Events, *evt)
		}
		if evt.Content.Role == model.RoleModel {
			sb.WriteString(evt.Content.Text())
		}
	}
	if firstErr != nil {
		return "", firstErr
	}
	return sb.String(), nil
}

// SkipSummarization reports whether the tool asks the outer agent to answer
// with the raw tool output.
func (at *Tool) SkipSummarization() bool { return at.skipSummarization }

// StreamInner reports whether the inner conversation joins the parent
// transcript.
func (at *Tool) StreamInner() bool { return at.streamInner }

// Declaration returns the tool's declaration information.
func (at *Tool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         at.name,
		Description:  at.description,
		InputSchema:  at.inputSchema,
		OutputSchema: at.outputSchema,
	}
}
