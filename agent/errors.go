//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package agent

import "fmt"

// Error types attached to error events raised by the agent layer.
const (
	// ErrorTypeAgentCallbackError marks a failure raised by a before or after
	// agent callback.
	ErrorTypeAgentCallbackError = "agent_callback_error"

	// ErrorTypeAgentContextCancelledError marks a run aborted because the
	// context was cancelled.
	ErrorTypeAgentContextCancelledError = "agent_context_cancelled_error"
)

// ExecutionError attributes an agent-tree failure to the node that raised it.
type ExecutionError struct {
	// AgentName is the node the failure belongs to.
	AgentName string
	// Err is the underlying failure.
	Err error
}

// NewExecutionError wraps err as a failure of the named agent.
func NewExecutionError(agentName string, err error) *ExecutionError {
	return &ExecutionError{AgentName: agentName, Err: err}
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s: %v", e.AgentName, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
