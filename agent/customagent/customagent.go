//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package customagent provides a leaf agent backed by a user-supplied Go function.
package customagent

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Handler is the function a CustomAgent runs for each invocation. It may
// return response content, a state delta to merge into the session, or both.
// A nil content with a nil delta produces no events.
type Handler func(ctx context.Context, invocation *agent.Invocation) (*model.Content, map[string][]byte, error)

const defaultChannelBufferSize = 64

// Options contains configuration options for CustomAgent.
type Options struct {
	description       string
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

// Option configures the custom agent.
type Option func(*Options)

// WithDescription sets the description of the agent.
func WithDescription(description string) Option {
	return func(opts *Options) {
		opts.description = description
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

// CustomAgent runs a Go function as an agent. Handler failures, including
// panics, surface as error events attributed to the agent rather than as
// process faults.
type CustomAgent struct {
	name              string
	description       string
	handler           Handler
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*CustomAgent)(nil)

// New creates a CustomAgent with the given name and handler.
func New(name string, handler Handler, opts ...Option) (*CustomAgent, error) {
	if name == "" {
		return nil, errors.New("customagent: name is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("customagent %s: a handler is required", name)
	}
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.channelBufferSize <= 0 {
		options.channelBufferSize = defaultChannelBufferSize
	}
	return &CustomAgent{
		name:              name,
		description:       options.description,
		handler:           handler,
		channelBufferSize: options.channelBufferSize,
		agentCallbacks:    options.agentCallbacks,
	}, nil
}

// Run implements the agent.Agent interface.
func (a *CustomAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	if invocation.Agent == nil {
		invocation.Agent = a
	}
	if invocation.AgentName == "" {
		invocation.AgentName = a.name
	}
	if invocation.AgentCallbacks == nil {
		invocation.AgentCallbacks = a.agentCallbacks
	}
	ctx = agent.NewInvocationContext(ctx, invocation)

	eventChan := make(chan *event.Event, a.channelBufferSize)
	go a.execute(ctx, invocation, eventChan)
	return eventChan, nil
}

func (a *CustomAgent) execute(ctx context.Context, invocation *agent.Invocation, eventChan chan<- *event.Event) {
	defer close(eventChan)

	if invocation.AgentCallbacks != nil {
		custom, err := invocation.AgentCallbacks.RunBeforeAgent(ctx, invocation)
		if err != nil {
			agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
				agent.ErrorTypeAgentCallbackError, fmt.Sprintf("before agent callback: %v", err)))
			return
		}
		if custom != nil {
			agent.EmitEvent(ctx, eventChan, event.NewResponseEvent(invocation.InvocationID, a.name, custom))
			return
		}
	}

	content, delta, err := a.invokeHandler(ctx, invocation)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
			model.ErrorTypeFlowError, agent.NewExecutionError(a.name, err).Error()))
		return
	}
	if evt := a.resultEvent(invocation, content, delta); evt != nil {
		if len(delta) > 0 && invocation.State != nil {
			invocation.State.ApplyDelta(delta)
		}
		if emitErr := agent.EmitEvent(ctx, eventChan, evt); emitErr != nil {
			return
		}
	}

	if invocation.AgentCallbacks != nil {
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
}

// invokeHandler runs the handler with panic isolation.
func (a *CustomAgent) invokeHandler(
	ctx context.Context,
	invocation *agent.Invocation,
) (content *model.Content, delta map[string][]byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			content, delta = nil, nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return a.handler(ctx, invocation)
}

func (a *CustomAgent) resultEvent(
	invocation *agent.Invocation,
	content *model.Content,
	delta map[string][]byte,
) *event.Event {
	switch {
	case content != nil:
		rsp := &model.Response{
			Object:       model.ObjectTypeChatCompletion,
			Content:      content,
			FinishReason: "stop",
			TurnComplete: true,
		}
		return event.New(invocation.InvocationID, a.name,
			event.WithResponse(rsp), event.WithStateDelta(delta), event.WithBranch(invocation.Branch))
	case len(delta) > 0:
		return event.New(invocation.InvocationID, a.name,
			event.WithObject(model.ObjectTypeStateUpdate), event.WithStateDelta(delta),
			event.WithBranch(invocation.Branch))
	default:
		return nil
	}
}

// Tools implements the agent.Agent interface.
func (a *CustomAgent) Tools() []tool.Tool {
	return nil
}

// Info implements the agent.Agent interface.
func (a *CustomAgent) Info() agent.Info {
	return agent.Info{
		Name:        a.name,
		Description: a.description,
	}
}

// SubAgents implements the agent.Agent interface.
func (a *CustomAgent) SubAgents() []agent.Agent {
	return nil
}

// FindSubAgent implements the agent.Agent interface.
func (a *CustomAgent) FindSubAgent(name string) agent.Agent {
	return nil
}
