//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package bridge exposes tools implemented by an embedded foreign runtime.
//
// A bridged runtime accepts one invocation at a time, process-wide. All
// bridge tools therefore share a single package-level lock: workers from any
// pool queue on it, and the lock is held only for the duration of the
// handler call itself. Timeouts and cancellation are observed by the caller,
// not by the handler; an abandoned call still completes (or fails) inside
// its worker without leaking goroutines.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const defaultPoolSize = 4

// invokeMu serializes every bridged invocation in the process.
var invokeMu sync.Mutex

// Handler invokes the bridged runtime with a JSON request and returns a JSON
// response. Implementations do not need to be safe for concurrent use; the
// bridge never runs two handlers at once.
type Handler func(request []byte) ([]byte, error)

// Tool is a CallableTool backed by a Handler.
type Tool struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	handler      Handler
	pool         *ants.Pool
	timeout      time.Duration
}

var _ tool.CallableTool = (*Tool)(nil)

// Option configures a bridge Tool.
type Option func(*options)

type options struct {
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	poolSize     int
	timeout      time.Duration
}

// WithInputSchema sets the JSON schema of the tool's arguments.
func WithInputSchema(s *tool.Schema) Option {
	return func(o *options) {
		o.inputSchema = s
	}
}

// WithOutputSchema sets the JSON schema of the tool's result.
func WithOutputSchema(s *tool.Schema) Option {
	return func(o *options) {
		o.outputSchema = s
	}
}

// WithPoolSize sets the number of workers that may queue on the runtime
// lock. More workers do not add parallelism, only queue depth.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithTimeout bounds a single bridged call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New creates a bridge tool around handler.
func New(name, description string, handler Handler, opts ...Option) (*Tool, error) {
	if handler == nil {
		return nil, fmt.Errorf("bridge tool %s: handler is nil", name)
	}
	o := &options{poolSize: defaultPoolSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.inputSchema == nil {
		o.inputSchema = &tool.Schema{Type: "object"}
	}

	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, fmt.Errorf("bridge tool %s: create worker pool: %w", name, err)
	}
	return &Tool{
		name:         name,
		description:  description,
		inputSchema:  o.inputSchema,
		outputSchema: o.outputSchema,
		handler:      handler,
		pool:         pool,
		timeout:      o.timeout,
	}, nil
}

// Call submits the invocation to the worker pool and waits for the result,
// the context, or the timeout, whichever comes first.
func (b *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	// The worker may outlive this call; give it a private copy of the args.
	request := make([]byte, len(jsonArgs))
	copy(request, jsonArgs)

	type result struct {
		response []byte
		err      error
	}
	resultCh := make(chan result, 1)

	err := b.pool.Submit(func() {
		invokeMu.Lock()
		response, err := b.handler(request)
		invokeMu.Unlock()
		resultCh <- result{response: response, err: err}
	})
	if err != nil {
		return nil, tool.NewError(b.name, "submit bridged call", err)
	}

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, tool.NewError(b.name, "bridged call failed", r.err)
		}
		return json.RawMessage(r.response), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, tool.NewError(b.name, "bridged call", tool.ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

// Declaration returns the tool's metadata.
func (b *Tool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         b.name,
		Description:  b.description,
		InputSchema:  b.inputSchema,
		OutputSchema: b.outputSchema,
	}
}

// Close releases the worker pool.
func (b *Tool) Close() error {
	b.pool.Release()
	return nil
}
