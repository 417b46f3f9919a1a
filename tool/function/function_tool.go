//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package function wraps plain Go functions as callable tools.
package function

import (
	"context"
	"encoding/json"
	"reflect"

	"trpc.group/trpc-go/trpc-adk-go/internal/schema"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// FunctionTool adapts a typed Go function into a tool.CallableTool.
// The input and output schemas are derived from I and O by reflection.
type FunctionTool[I, O any] struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	fn           func(ctx context.Context, in I) (O, error)
	longRunning  bool
}

var _ tool.CallableTool = (*FunctionTool[struct{}, struct{}])(nil)

// Option configures a FunctionTool.
type Option func(*options)

type options struct {
	name        string
	description string
	longRunning bool
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(opts *options) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *options) {
		opts.description = description
	}
}

// WithLongRunning marks the function tool as long-running.
func WithLongRunning(longRunning bool) Option {
	return func(opts *options) {
		opts.longRunning = longRunning
	}
}

// New creates a FunctionTool from fn.
func New[I, O any](fn func(ctx context.Context, in I) (O, error), opts ...Option) *FunctionTool[I, O] {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}

	var (
		emptyI I
		emptyO O
	)
	return &FunctionTool[I, O]{
		name:         options.name,
		description:  options.description,
		longRunning:  options.longRunning,
		fn:           fn,
		inputSchema:  schema.Generate(reflect.TypeOf(emptyI)),
		outputSchema: schema.Generate(reflect.TypeOf(emptyO)),
	}
}

// Call unmarshals jsonArgs into the input type and invokes the function.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if err := json.Unmarshal(jsonArgs, &input); err != nil {
		return nil, tool.NewError(ft.name, "invalid arguments", err)
	}
	out, err := ft.fn(ctx, input)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LongRunning reports whether the tool is expected to run for a long time.
func (ft *FunctionTool[I, O]) LongRunning() bool {
	return ft.longRunning
}

// Declaration returns the tool's metadata.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         ft.name,
		Description:  ft.description,
		InputSchema:  ft.inputSchema,
		OutputSchema: ft.outputSchema,
	}
}
