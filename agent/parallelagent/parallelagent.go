//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package parallelagent provides an agent that runs its sub-agents
// concurrently while keeping the observable output deterministic.
package parallelagent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const defaultChannelBufferSize = 256

// Options contains configuration options for ParallelAgent.
type Options struct {
	subAgents         []agent.Agent
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

// Option configures the parallel agent.
type Option func(*Options)

// WithSubAgents sets the sub-agents to fork.
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

// ParallelAgent forks one invocation per sub-agent and runs them
// concurrently. Each fork works on a snapshot of the state taken when the
// forks are spawned, so siblings never observe each other's writes. Once
// every fork has finished, events are replayed and state deltas are merged
// in declared sub-agent order, which makes the output independent of
// completion order. A fork that fails to start cancels the remaining forks.
type ParallelAgent struct {
	name              string
	subAgents         []agent.Agent
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*ParallelAgent)(nil)

// forkResult accumulates one sub-agent's output until every fork is done.
type forkResult struct {
	name   string
	events []*event.Event
	runErr error
}

// New creates a ParallelAgent with the given name and options.
func New(name string, opts ...Option) (*ParallelAgent, error) {
	if name == "" {
		return nil, errors.New("parallelagent: name is required")
	}
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if options.channelBufferSize <= 0 {
		options.channelBufferSize = defaultChannelBufferSize
	}
	return &ParallelAgent{
		name:              name,
		subAgents:         options.subAgents,
		channelBufferSize: options.channelBufferSize,
		agentCallbacks:    options.agentCallbacks,
	}, nil
}

// Run implements the agent.Agent interface.
func (a *ParallelAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	a.setupInvocation(invocation)
	ctx = agent.NewInvocationContext(ctx, invocation)

	eventChan := make(chan *event.Event, a.channelBufferSize)
	go a.executeForks(ctx, invocation, eventChan)
	return eventChan, nil
}

func (a *ParallelAgent) setupInvocation(invocation *agent.Invocation) {
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

func (a *ParallelAgent) executeForks(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	defer close(eventChan)

	if stop := a.handleBeforeAgentCallbacks(ctx, invocation, eventChan); stop {
		return
	}

	forkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*forkResult, len(a.subAgents))
	var wg sync.WaitGroup
	for i, sub := range a.subAgents {
		results[i] = &forkResult{name: sub.Info().Name}
		wg.Add(1)
		go func(res *forkResult, sub agent.Agent) {
			defer wg.Done()
			a.runFork(forkCtx, invocation, sub, res, cancel)
		}(results[i], sub)
	}
	wg.Wait()

	// Replay in declared order. The merge below gives later siblings the
	// final say on conflicting state keys.
	for _, res := range results {
		if res.runErr != nil {
			if err := agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
				model.ErrorTypeFlowError, agent.NewExecutionError(res.name, res.runErr).Error())); err != nil {
				return
			}
			continue
		}
		for _, evt := range res.events {
			if err := agent.EmitEvent(ctx, eventChan, evt); err != nil {
				return
			}
		}
		if invocation.State != nil {
			for _, evt := range res.events {
				if len(evt.StateDelta) > 0 {
					invocation.State.ApplyDelta(evt.StateDelta)
				}
			}
		}
	}

	a.handleAfterAgentCallbacks(ctx, invocation, eventChan)
}

// runFork executes one sub-agent against its own state snapshot and buffers
// its events. A start failure cancels the sibling forks.
func (a *ParallelAgent) runFork(
	ctx context.Context,
	invocation *agent.Invocation,
	sub agent.Agent,
	res *forkResult,
	cancel context.CancelFunc,
) {
	subInvocation := a.createForkInvocation(invocation, sub)
	subChan, err := sub.Run(ctx, subInvocation)
	if err != nil {
		res.runErr = err
		cancel()
		return
	}
	for evt := range subChan {
		res.events = append(res.events, evt)
	}
}

// createForkInvocation gives the sub-agent a sibling-isolated branch and a
// snapshot of the state as it was when the forks were spawned.
func (a *ParallelAgent) createForkInvocation(
	invocation *agent.Invocation,
	sub agent.Agent,
) *agent.Invocation {
	branch := a.name + "." + sub.Info().Name
	if invocation.Branch != "" {
		branch = invocation.Branch + "." + branch
	}
	var snapshot *session.State
	if invocation.State != nil {
		snapshot = invocation.State.Clone()
	}
	return invocation.Clone(
		agent.WithInvocationAgent(sub),
		agent.WithInvocationBranch(branch),
		agent.WithInvocationState(snapshot),
	)
}

func (a *ParallelAgent) handleBeforeAgentCallbacks(
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

func (a *ParallelAgent) handleAfterAgentCallbacks(
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
func (a *ParallelAgent) Tools() []tool.Tool {
	return nil
}

// Info implements the agent.Agent interface.
func (a *ParallelAgent) Info() agent.Info {
	return agent.Info{
		Name:        a.name,
		Description: fmt.Sprintf("Parallel agent that runs %d sub-agents concurrently", len(a.subAgents)),
	}
}

// SubAgents implements the agent.Agent interface.
func (a *ParallelAgent) SubAgents() []agent.Agent {
	return a.subAgents
}

// FindSubAgent implements the agent.Agent interface.
func (a *ParallelAgent) FindSubAgent(name string) agent.Agent {
	return agent.FindSubAgentByName(a.subAgents, name)
}
