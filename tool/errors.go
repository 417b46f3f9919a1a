//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a tool call exceeds its deadline.
var ErrTimeout = errors.New("tool call timed out")

// Error is a tool execution failure carrying the tool name.
// Flows convert it into an error function response instead of aborting the
// whole invocation, so the model gets a chance to recover.
type Error struct {
	// Tool is the name of the failing tool.
	Tool string
	// Message describes the failure in model-readable form.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a tool error.
func NewError(tool, message string, err error) *Error {
	return &Error{Tool: tool, Message: message, Err: err}
}
