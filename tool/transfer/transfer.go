//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package transfer provides the transfer_to_agent tool that lets a model
// hand the conversation to one of the agent's sub-agents.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// ToolName is the declared name of the transfer tool.
const ToolName = "transfer_to_agent"

// Request is the argument object of a transfer call.
type Request struct {
	// AgentName is the target agent.
	AgentName string `json:"agent_name"`
	// Message optionally replaces the message forwarded to the target.
	Message string `json:"message,omitempty"`
	// EndInvocation ends the whole invocation once the target finishes.
	EndInvocation bool `json:"end_invocation,omitempty"`
}

// Response reports the outcome of a transfer call back to the model.
type Response struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	TargetAgent string `json:"target_agent,omitempty"`
}

// Tool implements the transfer_to_agent tool over a fixed set of candidate
// agents.
type Tool struct {
	candidates []agent.Info
}

var _ tool.CallableTool = (*Tool)(nil)

// New creates a transfer tool offering the given agents as targets.
func New(candidates []agent.Info) *Tool {
	return &Tool{candidates: candidates}
}

// Declaration implements tool.Tool. The candidate list is spelled out in the
// parameter description so the model picks valid names.
func (t *Tool) Declaration() *tool.Declaration {
	names := make([]string, len(t.candidates))
	lines := make([]string, len(t.candidates))
	for i, info := range t.candidates {
		names[i] = info.Name
		lines[i] = fmt.Sprintf("- %s: %s", info.Name, info.Description)
	}
	return &tool.Declaration{
		Name:        ToolName,
		Description: "Transfer the conversation to another agent. The named agent takes over handling of the request.",
		InputSchema: &tool.Schema{
			Type: "object",
			Properties: map[string]*tool.Schema{
				"agent_name": {
					Type: "string",
					Description: fmt.Sprintf("Name of the agent to transfer to.\n\nAvailable agents:\n%s\n\nValid agent names: %v",
						strings.Join(lines, "\n"), names),
				},
				"message": {
					Type:        "string",
					Description: "Optional message to pass to the target agent.",
				},
			},
			Required: []string{"agent_name"},
		},
	}
}

// Call implements tool.CallableTool. A successful call records the pending
// hand-off on the invocation; the flow performs it after the tool round.
func (t *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var req Request
	if err := json.Unmarshal(jsonArgs, &req); err != nil {
		return Response{Success: false, Message: fmt.Sprintf("invalid transfer request: %v", err)}, nil
	}

	target := t.findCandidate(req.AgentName)
	if target == nil {
		names := make([]string, len(t.candidates))
		for i, info := range t.candidates {
			names[i] = info.Name
		}
		return Response{
			Success: false,
			Message: fmt.Sprintf("agent %q not found, available agents: %v", req.AgentName, names),
		}, nil
	}

	invocation, ok := agent.InvocationFromContext(ctx)
	if !ok || invocation == nil {
		return Response{Success: false, Message: "transfer failed: no invocation in context"}, nil
	}

	info := &agent.TransferInfo{
		TargetAgentName: target.Name,
		EndInvocation:   req.EndInvocation,
	}
	if req.Message != "" {
		info.Message = model.NewUserContent(model.NewTextPart(req.Message))
	}
	invocation.TransferInfo = info

	if actions, ok := agent.ToolActionsFromContext(ctx); ok {
		actions.TransferToAgent = target.Name
	}

	return Response{
		Success:     true,
		Message:     fmt.Sprintf("transfer initiated to agent %q", target.Name),
		TargetAgent: target.Name,
	}, nil
}

func (t *Tool) findCandidate(name string) *agent.Info {
	for i := range t.candidates {
		if t.candidates[i].Name == name {
			return &t.candidates[i]
		}
	}
	return nil
}
