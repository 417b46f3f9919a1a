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

	"trpc.group/trpc-go/trpc-adk-go/event"
)

type invocationKey struct{}

// NewInvocationContext returns a context carrying the invocation. Agents put
// it in place before running so tools and flows can reach the invocation
// without threading it through every signature.
func NewInvocationContext(ctx context.Context, invocation *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, invocation)
}

// InvocationFromContext extracts the invocation from the context.
func InvocationFromContext(ctx context.Context) (*Invocation, bool) {
	invocation, ok := ctx.Value(invocationKey{}).(*Invocation)
	return invocation, ok
}

type toolActionsKey struct{}

// NewToolActionsContext returns a context carrying the actions accumulator
// for the tool calls of one model turn. Built-in tools mutate the accumulator
// to raise flow control such as Escalate or TransferToAgent; the flow attaches
// it to the tool-response event afterwards.
func NewToolActionsContext(ctx context.Context, actions *event.EventActions) context.Context {
	return context.WithValue(ctx, toolActionsKey{}, actions)
}

// ToolActionsFromContext extracts the actions accumulator from the context.
// Tools called outside a flow get no accumulator.
func ToolActionsFromContext(ctx context.Context) (*event.EventActions, bool) {
	actions, ok := ctx.Value(toolActionsKey{}).(*event.EventActions)
	return actions, ok
}
