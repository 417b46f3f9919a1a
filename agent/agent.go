//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package agent provides the core agent functionality.
package agent

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Info contains basic information about an agent.
type Info struct {
	Name        string
	Description string
}

// Agent is the interface that all agents must implement.
//
// Run is a pure function of the invocation and the agent's declared
// configuration; implementations keep no per-turn state on the receiver and
// a single instance may serve concurrent invocations.
type Agent interface {
	// Run executes the provided invocation and returns a channel of events
	// representing the progress and results of the execution. The channel is
	// closed when the agent is done.
	Run(ctx context.Context, invocation *Invocation) (<-chan *event.Event, error)

	// Tools returns the list of tools this agent can execute.
	Tools() []tool.Tool

	// Info returns the basic information about this agent.
	Info() Info

	// SubAgents returns the list of sub-agents available to this agent.
	SubAgents() []Agent

	// FindSubAgent finds a sub-agent by name. Returns nil if no sub-agent
	// with the given name is found.
	FindSubAgent(name string) Agent
}

// FindSubAgentByName is the shared FindSubAgent implementation used by the
// agent variants.
func FindSubAgentByName(subAgents []Agent, name string) Agent {
	for _, sub := range subAgents {
		if sub.Info().Name == name {
			return sub
		}
	}
	return nil
}
