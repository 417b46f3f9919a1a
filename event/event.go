//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package event provides the event system for agent communication.
package event

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-adk-go/model"
)

// Event represents an event in conversation between agents and users.
type Event struct {
	// Response is the base struct for all LLM response functionality.
	*model.Response

	// InvocationID is the invocation ID of the event.
	InvocationID string `json:"invocationId"`

	// Author is the author of the event: an agent name or "user".
	Author string `json:"author"`

	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// Timestamp is the timestamp of the event.
	Timestamp time.Time `json:"timestamp"`

	// Branch is the branch identifier for hierarchical event filtering.
	Branch string `json:"branch,omitempty"`

	// StateDelta contains state changes to be applied to the session when
	// this event is committed. Values are JSON-encoded.
	StateDelta map[string][]byte `json:"stateDelta,omitempty"`

	// Actions carries control signals raised while producing this event.
	Actions *EventActions `json:"actions,omitempty"`
}

// EventActions are control signals an event can raise toward its ancestors.
type EventActions struct {
	// Escalate asks the nearest enclosing loop to stop iterating.
	Escalate bool `json:"escalate,omitempty"`

	// SkipSummarization asks the flow not to run a summarizing model call
	// over a tool result.
	SkipSummarization bool `json:"skipSummarization,omitempty"`

	// TransferToAgent names the agent the conversation is being routed to.
	TransferToAgent string `json:"transferToAgent,omitempty"`
}

// Clone creates a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Response = e.Response.Clone()
	if e.StateDelta != nil {
		clone.StateDelta = make(map[string][]byte, len(e.StateDelta))
		for k, v := range e.StateDelta {
			clone.StateDelta[k] = append([]byte(nil), v...)
		}
	}
	if e.Actions != nil {
		actions := *e.Actions
		clone.Actions = &actions
	}
	return &clone
}

// Filter reports whether the event is visible on the given branch.
// An event is visible when either branch is empty or one is a prefix
// of the other along "." boundaries.
func (e *Event) Filter(branch string) bool {
	if e == nil {
		return false
	}
	if branch == "" || e.Branch == "" || branch == e.Branch {
		return true
	}
	return strings.HasPrefix(branch, e.Branch+".") || strings.HasPrefix(e.Branch, branch+".")
}

// TransferTarget returns the routing target raised by this event, if any.
// Actions take precedence; a "[Routing to: <name>]" directive in the content
// text is honored as a fallback for model-emitted routing.
func (e *Event) TransferTarget() string {
	if e == nil {
		return ""
	}
	if e.Actions != nil && e.Actions.TransferToAgent != "" {
		return e.Actions.TransferToAgent
	}
	if e.Response == nil || e.Content == nil {
		return ""
	}
	text := e.Content.Text()
	start := strings.Index(text, routingPrefix)
	if start < 0 {
		return ""
	}
	rest := text[start+len(routingPrefix):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// routingPrefix marks a routing directive inside event content.
const routingPrefix = "[Routing to: "

// Option is a function that can be used to configure the Event.
type Option func(*Event)

// WithBranch sets the branch for the event.
func WithBranch(branch string) Option {
	return func(e *Event) {
		e.Branch = branch
	}
}

// WithResponse sets the response for the event.
func WithResponse(response *model.Response) Option {
	return func(e *Event) {
		e.Response = response
	}
}

// WithObject sets the object for the event.
func WithObject(o string) Option {
	return func(e *Event) {
		e.Object = o
	}
}

// WithStateDelta sets state delta for the event.
func WithStateDelta(stateDelta map[string][]byte) Option {
	return func(e *Event) {
		e.StateDelta = stateDelta
	}
}

// WithActions sets the actions for the event.
func WithActions(actions *EventActions) Option {
	return func(e *Event) {
		e.Actions = actions
	}
}

// New creates a new Event with generated ID and timestamp.
func New(invocationID, author string, opts ...Option) *Event {
	e := &Event{
		Response:     &model.Response{},
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewErrorEvent creates a new error Event with the specified error details.
// This provides a clean way to create error events without manual field assignment.
func NewErrorEvent(invocationID, author, errorType, errorMessage string) *Event {
	return &Event{
		Response: &model.Response{
			Object:       model.ObjectTypeError,
			TurnComplete: true,
			Error: &model.ResponseError{
				Type:    errorType,
				Message: errorMessage,
			},
		},
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
	}
}

// NewResponseEvent creates a new Event from a model Response.
func NewResponseEvent(invocationID, author string, response *model.Response) *Event {
	return &Event{
		Response:     response,
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
	}
}
