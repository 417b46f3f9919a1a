//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package sequentialagent provides an agent that runs its sub-agents one
// after another, in declared order.
package sequentialagent

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const defaultChannelBufferSize = 256

// Options contains configuration options for SequentialAgent.
type Options struct {
	subAgents         []agent.Agent
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

// Option configures the sequential agent.
type Option func(*Options)

// WithSubAgents sets the sub-agents to run, in order.
func WithSubAgents(subAgents ...agent.Agent) Option {
	return func(opts *Options) {
		opts.subAgents = subAgents
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

// SequentialAgent runs each sub-agent to completion before starting the
// next one. Sub-agents share the invocation state, so a delta written by
// one step is visible to every later step.
type SequentialAgent struct {
	name              string
	subAgents         []agent.Agent
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*SequentialAgent)(nil)

// New creates a SequentialAgent with the given name and options.
func New(name string, opts ...Option) (*SequentialAgent, error) {
	if name == "" {
		return nil, errors.New("sequentialagent: name is required")
	}
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.channelBufferSize <= 0 {
		options.channelBufferSize = defaultChannelBufferSize
	}
	return &SequentialAgent{
		name:              name,
		subAgents:         options.subAgents,
		channelBufferSize: options.channelBufferSize,
		agentCallbacks:    options.agentCallbacks,
	}, nil
}

// Run implements the agent.Agent interface.
func (a *SequentialAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	a.setupInvocation(invocation)
	ctx = agent.NewInvocationContext(ctx, invocation)

	eventChan := make(chan *event.Event, a.channelBufferSize)
	go a.executeSequence(ctx, invocation, eventChan)
	return eventChan, nil
}

func (a *SequentialAgent) setupInvocation(invocation *agent.Invocation) {
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

func (a *SequentialAgent) executeSequence(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	defer close(eventChan)

	if stop := a.handleBeforeAgentCallbacks(ctx, invocation, eventChan); stop {
		return
	}

	for _, sub := range a.subAgents {
		if err := agent.CheckContextCancelled(ctx); err != nil {
			return
		}
		subInvocation := a.createSubAgentInvocation(invocation, sub)
		subChan, err := sub.Run(ctx, subInvocation)
		if err != nil {
			agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
				model.ErrorTypeFlowError, agent.NewExecutionError(sub.Info().Name, err).Error()))
			return
		}
		for subEvent := range subChan {
			if emitErr := agent.EmitEvent(ctx, eventChan, subEvent); emitErr != nil {
				return
			}
		}
	}

	a.handleAfterAgentCallbacks(ctx, invocation, eventChan)
}

// createSubAgentInvocation scopes the shared invocation to one step. The
// sub-agent name is deliberately kept out of the branch so that every step
// can observe the events of the steps before it.
func (a *SequentialAgent) createSubAgentInvocation(
	invocation *agent.Invocation,
	sub agent.Agent,
) *agent.Invocation {
	subInvocation := invocation.CreateBranchInvocation(sub)
	if subInvocation.Branch == "" {
		subInvocation.Branch = a.name
	}
	return subInvocation
}

func (a *SequentialAgent) handleBeforeAgentCallbacks(
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

func (a *SequentialAgent) handleAfterAgentCallbacks(
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
func (a *SequentialAgent) Tools() []tool.Tool {
	return nil
}

// Info implements the agent.Agent interface.
func (a *SequentialAgent) Info() agent.Info {
	return agent.Info{
		Name:        a.name,
		Description: fmt.Sprintf("Sequential agent that runs %d sub-agents in order", len(a.subAgents)),
	}
}

// SubAgents implements the agent.Agent interface.
func (a *SequentialAgent) SubAgents() []agent.Agent {
	return a.subAgents
}

// FindSubAgent implements the agent.Agent interface.
func (a *SequentialAgent) FindSubAgent(name string) agent.Agent {
	return agent.FindSubAgentByName(a.subAgents, name)
}
