//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package exitloop provides the built-in tool that ends an enclosing loop.
package exitloop

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// ToolName is the declared name of the exit-loop tool.
const ToolName = "exit_loop"

// Tool signals loop termination by raising the escalate action on the
// current tool round. LoopAgent stops iterating when it sees the action.
type Tool struct{}

var _ tool.CallableTool = (*Tool)(nil)

// New creates the exit-loop tool.
func New() *Tool {
	return &Tool{}
}

// Declaration implements the tool.Tool interface.
func (t *Tool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        ToolName,
		Description: "Exits the current execution loop. Call this when the task is complete and no further iterations are needed.",
		InputSchema: &tool.Schema{Type: "object"},
	}
}

// Call implements the tool.CallableTool interface.
func (t *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	if actions, ok := agent.ToolActionsFromContext(ctx); ok {
		actions.Escalate = true
	}
	return map[string]string{"status": "loop exit requested"}, nil
}
