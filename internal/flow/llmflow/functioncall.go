//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package llmflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	itelemetry "trpc.group/trpc-go/trpc-adk-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-adk-go/tool"
	"trpc.group/trpc-go/trpc-adk-go/tool/transfer"
)

// executeTools runs the tool calls of one model round and builds the tool
// response event. Results keep the declared call order even when execution is
// parallel. Tool failures become error results handed back to the model; only
// callback errors abort the turn.
func (f *Flow) executeTools(
	ctx context.Context,
	invocation *agent.Invocation,
	calls []*model.FunctionCall,
	tools map[string]tool.Tool,
) (*event.Event, error) {
	actions := &event.EventActions{}
	ctx = agent.NewToolActionsContext(ctx, actions)

	var parts []model.Part
	var err error
	if f.opts.ParallelTools && len(calls) > 1 {
		parts, err = f.executeParallel(ctx, invocation, calls, tools)
	} else {
		parts, err = f.executeSerial(ctx, invocation, calls, tools)
	}
	if err != nil {
		return nil, err
	}

	content := model.Content{Role: model.RoleTool, Parts: parts}
	rsp := &model.Response{
		Object:    model.ObjectTypeToolResponse,
		Content:   &content,
		Timestamp: time.Now(),
	}
	toolEvent := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, rsp)
	if actions.Escalate || actions.SkipSummarization || actions.TransferToAgent != "" {
		toolEvent.Actions = actions
	}
	if len(calls) > 1 {
		_, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName("(merged)"))
		itelemetry.TraceMergedToolCalls(span, toolEvent)
		span.End()
	}
	return toolEvent, nil
}

func (f *Flow) executeSerial(
	ctx context.Context,
	invocation *agent.Invocation,
	calls []*model.FunctionCall,
	tools map[string]tool.Tool,
) ([]model.Part, error) {
	parts := make([]model.Part, len(calls))
	for i, call := range calls {
		part, err := f.executeCall(ctx, invocation, call, tools)
		if err != nil {
			return nil, err
		}
		parts[i] = part
	}
	return parts, nil
}

type toolResult struct {
	index int
	part  model.Part
	err   error
}

func (f *Flow) executeParallel(
	ctx context.Context,
	invocation *agent.Invocation,
	calls []*model.FunctionCall,
	tools map[string]tool.Tool,
) ([]model.Part, error) {
	resultChan := make(chan toolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(index int, call *model.FunctionCall) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("tool %s panicked: %v", call.Name, r)
					resultChan <- toolResult{
						index: index,
						part:  functionResponsePart(call, errorResult(fmt.Sprintf("tool %s panicked", call.Name))),
					}
				}
			}()
			part, err := f.executeCall(ctx, invocation, call, tools)
			resultChan <- toolResult{index: index, part: part, err: err}
		}(i, call)
	}
	wg.Wait()
	close(resultChan)

	parts := make([]model.Part, len(calls))
	var firstErr error
	for result := range resultChan {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
			}
			continue
		}
		parts[result.index] = result.part
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return parts, nil
}

// executeCall runs a single tool call inside an execute_tool span.
func (f *Flow) executeCall(
	ctx context.Context,
	invocation *agent.Invocation,
	call *model.FunctionCall,
	tools map[string]tool.Tool,
) (model.Part, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(call.Name))
	defer span.End()

	t, args := resolveTool(call, tools, invocation)
	if t == nil {
		log.Warnf("flow for agent %s: tool %q not found", invocation.AgentName, call.Name)
		part := functionResponsePart(call, errorResult(fmt.Sprintf("tool %q not found", call.Name)))
		notFound := &tool.Declaration{Name: call.Name, Description: "<not found>"}
		itelemetry.TraceToolCall(span, notFound, call.Arguments, part.FunctionResponse)
		return part, nil
	}

	part, err := f.runTool(ctx, invocation, t, call, args)
	if err != nil {
		return model.Part{}, err
	}
	itelemetry.TraceToolCall(span, t.Declaration(), args, part.FunctionResponse)
	return part, nil
}

// runTool runs the call through the before/after tool callbacks. The
// returned error is a callback failure; execution failures are folded into
// the result part.
func (f *Flow) runTool(
	ctx context.Context,
	invocation *agent.Invocation,
	t tool.Tool,
	call *model.FunctionCall,
	args []byte,
) (model.Part, error) {
	decl := t.Declaration()
	callbacks := invocation.ToolCallbacks

	if callbacks != nil {
		custom, err := callbacks.RunBeforeTool(ctx, call.Name, decl, &args)
		if err != nil {
			return model.Part{}, fmt.Errorf("before tool callback for %s: %w", call.Name, err)
		}
		if custom != nil {
			return functionResponsePart(call, custom), nil
		}
	}

	result, runErr := callTool(ctx, t, call.Name, args)

	if callbacks != nil {
		custom, err := callbacks.RunAfterTool(ctx, call.Name, decl, args, result, runErr)
		if err != nil {
			return model.Part{}, fmt.Errorf("after tool callback for %s: %w", call.Name, err)
		}
		if custom != nil {
			result, runErr = custom, nil
		}
	}

	if runErr != nil {
		log.Errorf("tool %s failed: %v", call.Name, runErr)
		return functionResponsePart(call, errorResult(runErr.Error())), nil
	}
	return functionResponsePart(call, result), nil
}

func callTool(ctx context.Context, t tool.Tool, name string, args []byte) (any, error) {
	callable, ok := t.(tool.CallableTool)
	if !ok {
		return nil, fmt.Errorf("tool %q cannot be called directly", name)
	}
	return callable.Call(ctx, args)
}

// resolveTool finds the tool for a call. A call naming a sub-agent directly
// is mapped onto the transfer tool, since some models skip transfer_to_agent
// and call the target by name.
func resolveTool(call *model.FunctionCall, tools map[string]tool.Tool, invocation *agent.Invocation) (tool.Tool, []byte) {
	if t, ok := tools[call.Name]; ok {
		return t, call.Arguments
	}
	t, ok := tools[transfer.ToolName]
	if !ok || invocation.Agent == nil || invocation.Agent.FindSubAgent(call.Name) == nil {
		return nil, nil
	}
	args := subAgentCallArgs(call)
	if args == nil {
		return nil, nil
	}
	return t, args
}

func subAgentCallArgs(call *model.FunctionCall) []byte {
	var input struct {
		Message string `json:"message,omitempty"`
	}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &input); err != nil {
			log.Warnf("cannot map call %s onto %s: %v", call.Name, transfer.ToolName, err)
			return nil
		}
	}
	args, err := json.Marshal(transfer.Request{AgentName: call.Name, Message: input.Message})
	if err != nil {
		return nil
	}
	return args
}

func functionResponsePart(call *model.FunctionCall, result any) model.Part {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Errorf("tool %s: encode result: %v", call.Name, err)
		payload, _ = json.Marshal(errorResult("failed to encode tool result"))
	}
	return model.NewFunctionResponsePart(call.ID, call.Name, payload)
}

func errorResult(message string) map[string]string {
	return map[string]string{"error": message}
}

// handleTransfer performs a pending hand-off: it announces the transfer,
// runs the target sub-agent with the same invocation ID, and forwards its
// events. The current agent's turn ends with the transfer.
func (f *Flow) handleTransfer(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	info := invocation.TransferInfo
	invocation.TransferInfo = nil
	if info == nil {
		return
	}

	var target agent.Agent
	if invocation.Agent != nil {
		target = invocation.Agent.FindSubAgent(info.TargetAgentName)
	}
	if target == nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(
			invocation.InvocationID,
			invocation.AgentName,
			model.ErrorTypeFlowError,
			fmt.Sprintf("transfer failed: agent %q not found", info.TargetAgentName),
		))
		return
	}

	notice := model.NewTextResponse("Transferring control to agent: " + target.Info().Name)
	notice.Object = model.ObjectTypeTransfer
	transferEvent := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, notice)
	transferEvent.Actions = &event.EventActions{TransferToAgent: target.Info().Name}
	if err := agent.EmitEvent(ctx, eventChan, transferEvent); err != nil {
		return
	}

	targetInvocation := invocation.CreateBranchInvocation(target)
	targetInvocation.TransferInfo = nil
	targetInvocation.EndInvocation = info.EndInvocation
	if len(info.Message.Parts) > 0 {
		targetInvocation.Message = info.Message
	}

	targetChan, err := target.Run(ctx, targetInvocation)
	if err != nil {
		agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(
			invocation.InvocationID,
			invocation.AgentName,
			model.ErrorTypeFlowError,
			fmt.Sprintf("transfer to %q failed: %v", target.Info().Name, err),
		))
		return
	}
	for targetEvent := range targetChan {
		if err := agent.EmitEvent(ctx, eventChan, targetEvent); err != nil {
			return
		}
	}
	invocation.EndInvocation = true
}
