//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"time"
)

// Error type constants for ResponseError.Type field.
const (
	ErrorTypeStreamError = "stream_error"
	ErrorTypeAPIError    = "api_error"
	ErrorTypeFlowError   = "flow_error"
)

// Object type constants for Response.Object field.
const (
	ObjectTypeError = "error"
	// ObjectTypeToolResponse is the object type for tool response events.
	ObjectTypeToolResponse = "tool.response"
	// ObjectTypeTransfer is the object type for agent routing events.
	ObjectTypeTransfer = "agent.transfer"
	// ObjectTypeRunnerCompletion is the object type for runner completion events.
	ObjectTypeRunnerCompletion = "runner.completion"
	// ObjectTypeStateUpdate is the object type for state update events.
	ObjectTypeStateUpdate = "state.update"

	// ObjectTypeChatCompletionChunk is the object type for streaming chunk events.
	ObjectTypeChatCompletionChunk = "chat.completion.chunk"
	// ObjectTypeChatCompletion is the object type for chat completion events.
	ObjectTypeChatCompletion = "chat.completion"
)

// Usage represents token usage information.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens in the response.
	TotalTokens int `json:"total_tokens"`
}

// Response is the response from the model.
//
// Error Handling Note:
// The Error field represents API-level errors that occur after successful
// communication with the model service. This is different from function-level
// errors returned by GenerateContent(), which indicate system-level failures
// that prevent communication entirely.
type Response struct {
	// ID is the unique identifier for this response.
	ID string `json:"id"`

	// Object describes the type of object returned (e.g., "chat.completion").
	Object string `json:"object"`

	// Created is the Unix timestamp when the response was created.
	Created int64 `json:"created"`

	// Model is the model used to generate the response.
	Model string `json:"model"`

	// Content is the generated content. Nil when the response carries only
	// an error or usage information.
	Content *Content `json:"content,omitempty"`

	// FinishReason is the reason generation stopped ("stop", "length",
	// "tool_calls", ...). Empty for partial responses.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token usage information (may be nil for streaming chunks).
	Usage *Usage `json:"usage,omitempty"`

	// Error contains API-level error information if the request failed.
	// This is nil for successful responses.
	Error *ResponseError `json:"error,omitempty"`

	// Timestamp when this response was received.
	Timestamp time.Time `json:"timestamp"`

	// Partial indicates a streaming chunk carrying a delta, not the
	// aggregated result.
	Partial bool `json:"partial"`

	// TurnComplete indicates the model finished its turn and the flow may
	// stop waiting for more responses.
	TurnComplete bool `json:"turn_complete"`
}

// Clone creates a deep copy of the response.
func (rsp *Response) Clone() *Response {
	if rsp == nil {
		return nil
	}
	clone := *rsp
	clone.Content = rsp.Content.Clone()
	if rsp.Usage != nil {
		u := *rsp.Usage
		clone.Usage = &u
	}
	if rsp.Error != nil {
		e := *rsp.Error
		clone.Error = &e
	}
	return &clone
}

// IsToolCallResponse checks if the response asks for tool executions.
func (rsp *Response) IsToolCallResponse() bool {
	return rsp != nil && len(rsp.Content.FunctionCalls()) > 0
}

// IsToolResultResponse checks if the response carries tool execution results.
func (rsp *Response) IsToolResultResponse() bool {
	return rsp != nil && len(rsp.Content.FunctionResponses()) > 0
}

// IsValidContent checks if the response has content worth recording.
func (rsp *Response) IsValidContent() bool {
	if rsp == nil || rsp.Content == nil {
		return false
	}
	if rsp.IsToolCallResponse() || rsp.IsToolResultResponse() {
		return true
	}
	return rsp.Content.Text() != ""
}

// IsFinalResponse checks if the Response terminates the current agent turn.
// Partial chunks and tool call requests are not final; the flow keeps going
// after them.
func (rsp *Response) IsFinalResponse() bool {
	if rsp == nil {
		return true
	}
	if rsp.Partial || rsp.IsToolCallResponse() {
		return false
	}
	return rsp.TurnComplete && (rsp.Content != nil || rsp.Error != nil)
}

// ResponseError represents an error response from the API.
type ResponseError struct {
	// Message is the error message.
	Message string `json:"message"`

	// Type is the type of error.
	Type string `json:"type"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return e.Message
}

// NewTextResponse creates a final model-authored response with a single text
// part.
func NewTextResponse(text string) *Response {
	content := NewModelContent(NewTextPart(text))
	return &Response{
		Object:       ObjectTypeChatCompletion,
		Content:      &content,
		FinishReason: "stop",
		Timestamp:    time.Now(),
		TurnComplete: true,
	}
}

// NewErrorResponse creates a terminal response carrying an API-level error.
func NewErrorResponse(errorType, message string) *Response {
	return &Response{
		Object:       ObjectTypeError,
		TurnComplete: true,
		Timestamp:    time.Now(),
		Error: &ResponseError{
			Type:    errorType,
			Message: message,
		},
	}
}
