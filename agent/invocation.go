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
	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-adk-go/artifact"
	"trpc.group/trpc-go/trpc-adk-go/memory"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// StreamingMode controls how model output is surfaced during a run.
type StreamingMode int

const (
	// StreamingModeNone buffers model output and emits complete responses.
	StreamingModeNone StreamingMode = iota
	// StreamingModeSSE emits partial responses as the model streams them.
	StreamingModeSSE
	// StreamingModeBidi reserves bidirectional streaming. It currently
	// behaves like StreamingModeSSE.
	StreamingModeBidi
)

// RunOptions carries per-run settings supplied by the caller.
type RunOptions struct {
	// RuntimeState is merged into the invocation state before the run starts.
	// Values must be JSON-serializable.
	RuntimeState map[string]any

	// StreamingMode selects buffered or streamed model output.
	StreamingMode StreamingMode
}

// RunOption configures RunOptions.
type RunOption func(*RunOptions)

// WithRuntimeState sets initial state for this run.
func WithRuntimeState(state map[string]any) RunOption {
	return func(o *RunOptions) {
		o.RuntimeState = state
	}
}

// WithStreamingMode sets the streaming mode for this run.
func WithStreamingMode(mode StreamingMode) RunOption {
	return func(o *RunOptions) {
		o.StreamingMode = mode
	}
}

// TransferInfo records a pending hand-off to another agent in the tree.
type TransferInfo struct {
	// TargetAgentName is the agent to transfer control to.
	TargetAgentName string

	// Message is the content forwarded to the target agent.
	Message model.Content

	// EndInvocation ends the invocation after the transfer completes.
	EndInvocation bool
}

// Invocation is the per-run context threaded through an agent tree. It owns
// the identity of the run, the working state, and the services and callbacks
// shared by every node. Agents read and update the invocation instead of
// keeping per-turn state on themselves.
type Invocation struct {
	// Agent is the agent currently executing.
	Agent Agent

	// AgentName is the name of the executing agent.
	AgentName string

	// InvocationID identifies this run. Every event produced during the run
	// carries it.
	InvocationID string

	// Branch is the dot-separated path of the executing node inside composite
	// agents. Empty for the root.
	Branch string

	// EndInvocation signals that the run should stop after the current step.
	EndInvocation bool

	// Session is the conversation this run belongs to. May be nil when an
	// agent is run without a runner.
	Session *session.Session

	// State is the mutable working state for this run. Composite agents
	// decide whether children share it or receive clones.
	State *session.State

	// Model is the default model for LLM agents that do not declare their own.
	Model model.Model

	// Message is the content that triggered this invocation.
	Message model.Content

	// RunOptions are the caller-supplied per-run settings.
	RunOptions RunOptions

	// TransferInfo is set when a transfer to another agent is pending.
	TransferInfo *TransferInfo

	// AgentCallbacks hook agent execution.
	AgentCallbacks *Callbacks

	// ModelCallbacks hook model calls.
	ModelCallbacks *model.Callbacks

	// ToolCallbacks hook tool executions.
	ToolCallbacks *tool.Callbacks

	// ArtifactService stores binary artifacts, if configured.
	ArtifactService artifact.Service

	// MemoryService stores long-term memory, if configured.
	MemoryService memory.Service
}

// InvocationOption configures an Invocation.
type InvocationOption func(*Invocation)

// WithInvocationAgent sets the executing agent and its name.
func WithInvocationAgent(a Agent) InvocationOption {
	return func(inv *Invocation) {
		inv.Agent = a
		if a != nil {
			inv.AgentName = a.Info().Name
		}
	}
}

// WithInvocationID sets the invocation ID.
func WithInvocationID(id string) InvocationOption {
	return func(inv *Invocation) {
		inv.InvocationID = id
	}
}

// WithInvocationBranch sets the branch path.
func WithInvocationBranch(branch string) InvocationOption {
	return func(inv *Invocation) {
		inv.Branch = branch
	}
}

// WithInvocationSession sets the session.
func WithInvocationSession(sess *session.Session) InvocationOption {
	return func(inv *Invocation) {
		inv.Session = sess
	}
}

// WithInvocationState sets the working state.
func WithInvocationState(state *session.State) InvocationOption {
	return func(inv *Invocation) {
		inv.State = state
	}
}

// WithInvocationModel sets the default model.
func WithInvocationModel(m model.Model) InvocationOption {
	return func(inv *Invocation) {
		inv.Model = m
	}
}

// WithInvocationMessage sets the triggering message.
func WithInvocationMessage(message model.Content) InvocationOption {
	return func(inv *Invocation) {
		inv.Message = message
	}
}

// WithInvocationRunOptions sets the per-run options.
func WithInvocationRunOptions(opts RunOptions) InvocationOption {
	return func(inv *Invocation) {
		inv.RunOptions = opts
	}
}

// WithInvocationArtifactService sets the artifact service.
func WithInvocationArtifactService(svc artifact.Service) InvocationOption {
	return func(inv *Invocation) {
		inv.ArtifactService = svc
	}
}

// WithInvocationMemoryService sets the memory service.
func WithInvocationMemoryService(svc memory.Service) InvocationOption {
	return func(inv *Invocation) {
		inv.MemoryService = svc
	}
}

// NewInvocation creates an invocation with a generated ID. A working state is
// allocated when none is supplied so agents can always apply deltas.
func NewInvocation(opts ...InvocationOption) *Invocation {
	inv := &Invocation{
		InvocationID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	if inv.State == nil {
		inv.State = session.NewState(nil)
	}
	return inv
}

// Clone returns a shallow copy of the invocation with the given options
// applied. The session, state, services, and callbacks are shared with the
// original.
func (inv *Invocation) Clone(opts ...InvocationOption) *Invocation {
	clone := *inv
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// CreateBranchInvocation creates the invocation a composite agent hands to a
// child. The child shares the parent's invocation ID, session, state, and
// services; callers adjust Branch or State afterwards when isolation is
// needed.
func (inv *Invocation) CreateBranchInvocation(subAgent Agent) *Invocation {
	return inv.Clone(WithInvocationAgent(subAgent))
}
