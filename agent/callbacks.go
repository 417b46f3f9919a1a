//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/model"
)

// BeforeAgentCallback runs before an agent executes. A non-nil response
// becomes the agent's output and skips execution entirely.
type BeforeAgentCallback func(ctx context.Context, invocation *Invocation) (*model.Response, error)

// AfterAgentCallback runs after an agent executes, receiving the execution
// error if any. A non-nil response is appended to the agent's output.
type AfterAgentCallback func(ctx context.Context, invocation *Invocation, runErr error) (*model.Response, error)

// Callbacks holds the agent-level hooks for an invocation.
type Callbacks struct {
	// BeforeAgent runs in registration order before execution.
	BeforeAgent []BeforeAgentCallback
	// AfterAgent runs in registration order after execution.
	AfterAgent []AfterAgentCallback
}

// NewCallbacks creates an empty callback registry.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// RegisterBeforeAgent registers a before-agent callback.
func (c *Callbacks) RegisterBeforeAgent(cb BeforeAgentCallback) *Callbacks {
	c.BeforeAgent = append(c.BeforeAgent, cb)
	return c
}

// RegisterAfterAgent registers an after-agent callback.
func (c *Callbacks) RegisterAfterAgent(cb AfterAgentCallback) *Callbacks {
	c.AfterAgent = append(c.AfterAgent, cb)
	return c
}

// RunBeforeAgent runs the before-agent callbacks in order. The first callback
// returning a custom response or an error stops the chain.
func (c *Callbacks) RunBeforeAgent(ctx context.Context, invocation *Invocation) (*model.Response, error) {
	for _, cb := range c.BeforeAgent {
		customResponse, err := cb(ctx, invocation)
		if err != nil {
			return nil, err
		}
		if customResponse != nil {
			return customResponse, nil
		}
	}
	return nil, nil
}

// RunAfterAgent runs the after-agent callbacks in order. The first callback
// returning a custom response or an error stops the chain.
func (c *Callbacks) RunAfterAgent(ctx context.Context, invocation *Invocation, runErr error) (*model.Response, error) {
	for _, cb := range c.AfterAgent {
		customResponse, err := cb(ctx, invocation, runErr)
		if err != nil {
			return nil, err
		}
		if customResponse != nil {
			return customResponse, nil
		}
	}
	return nil, nil
}
