//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package conditionalagent provides rule-based and model-based routing agents.
package conditionalagent

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const defaultChannelBufferSize = 256

// Condition decides which branch of a ConditionalAgent runs.
type Condition func(ctx context.Context, invocation *agent.Invocation) bool

// Options contains configuration options shared by the agents in this
// package. WithIfAgent and WithElseAgent apply to ConditionalAgent;
// WithRoute and WithDefaultRoute apply to LlmConditionalAgent.
type Options struct {
	ifAgent           agent.Agent
	elseAgent         agent.Agent
	routes            []Route
	defaultAgent      agent.Agent
	description       string
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

// Option configures a conditional agent.
type Option func(*Options)

// WithIfAgent sets the agent run when the condition holds.
func WithIfAgent(a agent.Agent) Option {
	return func(opts *Options) {
		opts.ifAgent = a
	}
}

// WithElseAgent sets the agent run when the condition does not hold.
// Without an else agent a false condition produces no events.
func WithElseAgent(a agent.Agent) Option {
	return func(opts *Options) {
		opts.elseAgent = a
	}
}

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

// ConditionalAgent routes each invocation to one of two sub-agents based on
// a deterministic predicate over the invocation. A panicking predicate
// counts as false.
type ConditionalAgent struct {
	name              string
	description       string
	condition         Condition
	ifAgent           agent.Agent
	elseAgent         agent.Agent
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*ConditionalAgent)(nil)

// New creates a ConditionalAgent with the given name, condition and options.
func New(name string, condition Condition, opts ...Option) (*ConditionalAgent, error) {
	if name == "" {
		return nil, errors.New("conditionalagent: name is required")
	}
	if condition == nil {
		return nil, fmt.Errorf("conditionalagent %s: a condition is required", name)
	}
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.ifAgent == nil {
		return nil, fmt.Errorf("conditionalagent %s: an if agent is required", name)
	}
	if options.channelBufferSize <= 0 {
		options.channelBufferSize = defaultChannelBufferSize
	}
	return &ConditionalAgent{
		name:              name,
		description:       options.description,
		condition:         condition,
		ifAgent:           options.ifAgent,
		elseAgent:         options.elseAgent,
		channelBufferSize: options.channelBufferSize,
		agentCallbacks:    options.agentCallbacks,
	}, nil
}

// Run implements the agent.Agent interface.
func (a *ConditionalAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
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
	go a.executeBranch(ctx, invocation, eventChan)
	return eventChan, nil
}

func (a *ConditionalAgent) executeBranch(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	defer close(eventChan)

	if stop := handleBeforeAgentCallbacks(ctx, a.name, invocation, eventChan); stop {
		return
	}

	target := a.ifAgent
	if !a.evaluate(ctx, invocation) {
		target = a.elseAgent
	}
	if target != nil {
		if ok := dispatch(ctx, a.name, invocation, target, eventChan); !ok {
			return
		}
	}

	handleAfterAgentCallbacks(ctx, a.name, invocation, eventChan)
}

// evaluate runs the condition, treating a panic as false.
func (a *ConditionalAgent) evaluate(ctx context.Context, invocation *agent.Invocation) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("conditional agent %s: condition panicked, taking else branch: %v", a.name, r)
			result = false
		}
	}()
	return a.condition(ctx, invocation)
}

// Tools implements the agent.Agent interface.
func (a *ConditionalAgent) Tools() []tool.Tool {
	return nil
}

// Info implements the agent.Agent interface.
func (a *ConditionalAgent) Info() agent.Info {
	return agent.Info{
		Name:        a.name,
		Description: a.description,
	}
}

// SubAgents implements the agent.Agent interface.
func (a *ConditionalAgent) SubAgents() []agent.Agent {
	subAgents := []agent.Agent{a.ifAgent}
	if a.elseAgent != nil {
		subAgents = append(subAgents, a.elseAgent)
	}
	return subAgents
}

// FindSubAgent implements the agent.Agent interface.
func (a *ConditionalAgent) FindSubAgent(name string) agent.Agent {
	return agent.FindSubAgentByName(a.SubAgents(), name)
}

// dispatch runs target against a branch scoped to parentName, forwarding its
// events. It reports whether forwarding completed.
func dispatch(
	ctx context.Context,
	parentName string,
	invocation *agent.Invocation,
	target agent.Agent,
	eventChan chan<- *event.Event,
) bool {
	subInvocation := invocation.CreateBranchInvocation(target)
	if subInvocation.Branch == "" {
		subInvocation.Branch = parentName
	}
	subChan, err := target.Run(ctx, subInvocation)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, parentName,
			model.ErrorTypeFlowError, agent.NewExecutionError(target.Info().Name, err).Error()))
		return false
	}
	for subEvent := range subChan {
		if emitErr := agent.EmitEvent(ctx, eventChan, subEvent); emitErr != nil {
			return false
		}
	}
	return true
}

func handleBeforeAgentCallbacks(
	ctx context.Context,
	name string,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) bool {
	if invocation.AgentCallbacks == nil {
		return false
	}
	custom, err := invocation.AgentCallbacks.RunBeforeAgent(ctx, invocation)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, name,
			agent.ErrorTypeAgentCallbackError, fmt.Sprintf("before agent callback: %v", err)))
		return true
	}
	if custom != nil {
		agent.EmitEvent(ctx, eventChan, event.NewResponseEvent(invocation.InvocationID, name, custom))
		return true
	}
	return false
}

func handleAfterAgentCallbacks(
	ctx context.Context,
	name string,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	if invocation.AgentCallbacks == nil {
		return
	}
	custom, err := invocation.AgentCallbacks.RunAfterAgent(ctx, invocation, nil)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, name,
			agent.ErrorTypeAgentCallbackError, fmt.Sprintf("after agent callback: %v", err)))
		return
	}
	if custom != nil {
		agent.EmitEvent(ctx, eventChan, event.NewResponseEvent(invocation.InvocationID, name, custom))
	}
}
