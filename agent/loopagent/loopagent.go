//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package loopagent provides an agent that repeats its sub-agent sequence
// until an exit signal or an iteration cap.
package loopagent

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const (
	defaultChannelBufferSize = 256

	// DefaultMaxIterations caps the loop when WithMaxIterations is not set.
	// The loop never runs unbounded.
	DefaultMaxIterations = 10
)

// EscalationFunc decides whether an event ends the loop.
type EscalationFunc func(*event.Event) bool

// Options contains configuration options for LoopAgent.
type Options struct {
	subAgents         []agent.Agent
	maxIterations     int
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
	escalationFunc    EscalationFunc
}

// Option configures the loop agent.
type Option func(*Options)

// WithSubAgents sets the sub-agents run on every iteration, in order.
func WithSubAgents(subAgents ...agent.Agent) Option {
	return func(opts *Options) {
		opts.subAgents = subAgents
	}
}

// WithMaxIterations sets the iteration cap. Values below one fall back to
// DefaultMaxIterations.
func WithMaxIterations(n int) Option {
	return func(opts *Options) {
		opts.maxIterations = n
	}
}

// WithChannelBufferSize sets the buffer size of the event channel.
func WithChannelBufferSize(size int) Option {
	return func(opts *Options) {
		opts.channelBufferSize = size
	}
}

// WithAgentCallbacks sets the agent callbacks.
func WithAgentCallbacks(callbacks *agent.Callbacks) Option {
	return func(opts *Options) {
		opts.agentCallbacks = callbacks
	}
}

// WithEscalationFunc overrides the default loop-exit check.
func WithEscalationFunc(fn EscalationFunc) Option {
	return func(opts *Options) {
		opts.escalationFunc = fn
	}
}

// LoopAgent repeats its sub-agent sequence. Each iteration runs the
// sub-agents in order against the shared state, so deltas accumulate across
// iterations. The loop ends when an event raises the escalate action, when
// an event carries an error, or after the iteration cap.
type LoopAgent struct {
	name              string
	subAgents         []agent.Agent
	maxIterations     int
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
	escalationFunc    EscalationFunc
}

var _ agent.Agent = (*LoopAgent)(nil)

// New creates a LoopAgent with the given name and options.
func New(name string, opts ...Option) (*LoopAgent, error) {
	if name == "" {
		return nil, errors.New("loopagent: name is required")
	}
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxIterations < 1 {
		options.maxIterations = DefaultMaxIterations
	}
	if options.channelBufferSize <= 0 {
		options.channelBufferSize = defaultChannelBufferSize
	}
	if options.escalationFunc == nil {
		options.escalationFunc = defaultEscalation
	}
	return &LoopAgent{
		name:              name,
		subAgents:         options.subAgents,
		maxIterations:     options.maxIterations,
		channelBufferSize: options.channelBufferSize,
		agentCallbacks:    options.agentCallbacks,
		escalationFunc:    options.escalationFunc,
	}, nil
}

func defaultEscalation(evt *event.Event) bool {
	if evt == nil {
		return false
	}
	if evt.Actions != nil && evt.Actions.Escalate {
		return true
	}
	return evt.Response != nil && evt.Error != nil
}

// Run implements the agent.Agent interface.
func (a *LoopAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	a.setupInvocation(invocation)
	ctx = agent.NewInvocationContext(ctx, invocation)

	eventChan := make(chan *event.Event, a.channelBufferSize)
	go a.executeLoop(ctx, invocation, eventChan)
	return eventChan, nil
}

func (a *LoopAgent) setupInvocation(invocation *agent.Invocation) {
	if invocation.Agent == nil {
		invocation.Agent = a
	}
	if invocation.AgentName == "" {
		invocation.AgentName = a.name
	}
	if invocation.AgentCallbacks == nil {
		invocation.AgentCallbacks = a.agentCallbacks
	}
}

func (a *LoopAgent) executeLoop(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	defer close(eventChan)

	if stop := a.handleBeforeAgentCallbacks(ctx, invocation, eventChan); stop {
		return
	}
	if len(a.subAgents) > 0 {
	loop:
		for iteration := 0; iteration < a.maxIterations; iteration++ {
			for _, sub := range a.subAgents {
				if err := agent.CheckContextCancelled(ctx); err != nil {
					return
				}
				exit, ok := a.runIterationStep(ctx, invocation, sub, eventChan)
				if !ok {
					return
				}
				if exit {
					break loop
				}
			}
		}
	}

	a.handleAfterAgentCallbacks(ctx, invocation, eventChan)
}

// runIterationStep runs one sub-agent to completion, forwarding its events.
// It reports whether the loop should exit and whether forwarding succeeded.
func (a *LoopAgent) runIterationStep(
	ctx context.Context,
	invocation *agent.Invocation,
	sub agent.Agent,
	eventChan chan<- *event.Event,
) (exit, ok bool) {
	subInvocation := invocation.CreateBranchInvocation(sub)
	if subInvocation.Branch == "" {
		subInvocation.Branch = a.name
	}
	subChan, err := sub.Run(ctx, subInvocation)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
			model.ErrorTypeFlowError, agent.NewExecutionError(sub.Info().Name, err).Error()))
		return true, false
	}
	// The step is always drained fully; the exit decision applies after.
	for subEvent := range subChan {
		if a.escalationFunc(subEvent) {
			exit = true
		}
		if emitErr := agent.EmitEvent(ctx, eventChan, subEvent); emitErr != nil {
			return exit, false
		}
	}
	return exit, true
}

func (a *LoopAgent) handleBeforeAgentCallbacks(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) bool {
	if invocation.AgentCallbacks == nil {
		return false
	}
	custom, err := invocation.AgentCallbacks.RunBeforeAgent(ctx, invocation)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
			agent.ErrorTypeAgentCallbackError, fmt.Sprintf("before agent callback: %v", err)))
		return true
	}
	if custom != nil {
		agent.EmitEvent(ctx, eventChan, event.NewResponseEvent(invocation.InvocationID, a.name, custom))
		return true
	}
	return false
}

func (a *LoopAgent) handleAfterAgentCallbacks(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	if invocation.AgentCallbacks == nil {
		return
	}
	custom, err := invocation.AgentCallbacks.RunAfterAgent(ctx, invocation, nil)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
			agent.ErrorTypeAgentCallbackError, fmt.Sprintf("after agent callback: %v", err)))
		return
	}
	if custom != nil {
		agent.EmitEvent(ctx, eventChan, event.NewResponseEvent(invocation.InvocationID, a.name, custom))
	}
}

// Tools implements the agent.Agent interface.
func (a *LoopAgent) Tools() []tool.Tool {
	return nil
}

// Info implements the agent.Agent interface.
func (a *LoopAgent) Info() agent.Info {
	return agent.Info{
		Name:        a.name,
		Description: fmt.Sprintf("Loop agent that repeats %d sub-agents for up to %d iterations", len(a.subAgents), a.maxIterations),
	}
}

// SubAgents implements the agent.Agent interface.
func (a *LoopAgent) SubAgents() []agent.Agent {
	return a.subAgents
}

// FindSubAgent implements the agent.Agent interface.
func (a *LoopAgent) FindSubAgent(name string) agent.Agent {
	return agent.FindSubAgentByName(a.subAgents, name)
}
