//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package llmflow drives the model-call loop of an LLM agent: request
// assembly, model callbacks, streaming, tool execution, and delegation.
package llmflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/internal/state"
	itelemetry "trpc.group/trpc-go/trpc-adk-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const (
	defaultChannelBufferSize = 256
	defaultMaxToolIterations = 10
)

// Options configures a Flow.
type Options struct {
	// Instruction is the system instruction template. {key} placeholders are
	// filled from the working state per request.
	Instruction string

	// GenerationConfig carries the generation parameters for every call.
	GenerationConfig model.GenerationConfig

	// OutputKey, when set, stores the final response text into the working
	// state under this key.
	OutputKey string

	// MaxToolIterations caps the model-call rounds of one turn. Zero or
	// negative selects the default of 10.
	MaxToolIterations int

	// ParallelTools executes the tool calls of one round concurrently.
	ParallelTools bool

	// ChannelBufferSize is the event channel buffer size.
	ChannelBufferSize int
}

// Flow runs the model-call loop for one agent turn. A Flow is stateless and
// safe for concurrent invocations.
type Flow struct {
	opts Options
}

// New creates a flow with the given options.
func New(opts Options) *Flow {
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = defaultMaxToolIterations
	}
	if opts.ChannelBufferSize <= 0 {
		opts.ChannelBufferSize = defaultChannelBufferSize
	}
	return &Flow{opts: opts}
}

// Run executes the flow until the model answers without pending tool calls,
// the iteration cap is hit, or the invocation ends. The returned channel is
// closed when the turn is over.
func (f *Flow) Run(
	ctx context.Context,
	invocation *agent.Invocation,
	tools map[string]tool.Tool,
) (<-chan *event.Event, error) {
	eventChan := make(chan *event.Event, f.opts.ChannelBufferSize)
	go func() {
		defer close(eventChan)
		f.execute(ctx, invocation, tools, eventChan)
	}()
	return eventChan, nil
}

func (f *Flow) execute(
	ctx context.Context,
	invocation *agent.Invocation,
	tools map[string]tool.Tool,
	eventChan chan<- *event.Event,
) {
	ctx = agent.NewInvocationContext(ctx, invocation)
	contents := f.initialContents(invocation)

	for iteration := 0; iteration < f.opts.MaxToolIterations; iteration++ {
		responseEvent, err := f.modelTurn(ctx, invocation, contents, tools, eventChan)
		if err != nil {
			f.emitFlowError(ctx, invocation, eventChan, err)
			return
		}
		if responseEvent == nil {
			// The model produced nothing; treat as terminal to avoid a busy
			// loop.
			return
		}

		final := responseEvent.Response
		calls := final.Content.FunctionCalls()
		if len(calls) == 0 || final.Error != nil || invocation.EndInvocation {
			f.applyOutputKey(invocation, final, responseEvent)
			agent.EmitEvent(ctx, eventChan, responseEvent)
			return
		}

		// Tool round: emit the call request, execute, feed results back.
		if err := agent.EmitEvent(ctx, eventChan, responseEvent); err != nil {
			return
		}
		contents = append(contents, *final.Content)

		toolEvent, err := f.executeTools(ctx, invocation, calls, tools)
		if err != nil {
			f.emitFlowError(ctx, invocation, eventChan, err)
			return
		}
		if err := agent.EmitEvent(ctx, eventChan, toolEvent); err != nil {
			return
		}
		contents = append(contents, *toolEvent.Content)

		if invocation.TransferInfo != nil {
			f.handleTransfer(ctx, invocation, eventChan)
			return
		}
		if actions := toolEvent.Actions; actions != nil && (actions.Escalate || actions.SkipSummarization) {
			// The tool ended the turn; do not call the model again.
			return
		}
	}

	f.emitFlowError(ctx, invocation, eventChan,
		fmt.Errorf("stopped after %d tool iterations", f.opts.MaxToolIterations))
}

// modelTurn performs one model call inside a chat span. It emits partial
// chunks when streaming is on and returns the final aggregated response
// wrapped in an event; the caller emits it.
func (f *Flow) modelTurn(
	ctx context.Context,
	invocation *agent.Invocation,
	contents []model.Content,
	tools map[string]tool.Tool,
	eventChan chan<- *event.Event,
) (*event.Event, error) {
	request := &model.Request{
		Contents:         contents,
		GenerationConfig: f.requestConfig(invocation),
		Tools:            tools,
	}

	var modelName string
	if invocation.Model != nil {
		modelName = invocation.Model.Info().Name
	}
	_, span := trace.Tracer.Start(ctx, itelemetry.NewChatSpanName(modelName))
	defer span.End()

	final, err := f.generate(ctx, invocation, request, eventChan)
	if err != nil || final == nil {
		return nil, err
	}
	responseEvent := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, final)
	itelemetry.TraceChat(span, invocation, request, final, responseEvent.ID)
	return responseEvent, nil
}

// generate runs the model callbacks and the model call itself, draining the
// response stream.
func (f *Flow) generate(
	ctx context.Context,
	invocation *agent.Invocation,
	request *model.Request,
	eventChan chan<- *event.Event,
) (*model.Response, error) {
	callbacks := invocation.ModelCallbacks
	if callbacks != nil {
		custom, err := callbacks.RunBeforeModel(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("before model callback: %w", err)
		}
		if custom != nil {
			return custom, nil
		}
	}

	if invocation.Model == nil {
		return nil, errors.New("no model configured")
	}

	responseChan, err := invocation.Model.GenerateContent(ctx, request)
	if err != nil {
		return nil, err
	}

	var final *model.Response
	for response := range responseChan {
		if callbacks != nil {
			custom, cbErr := callbacks.RunAfterModel(ctx, request, response, nil)
			if cbErr != nil {
				return nil, fmt.Errorf("after model callback: %w", cbErr)
			}
			if custom != nil {
				response = custom
			}
		}
		if response.Partial {
			if invocation.RunOptions.StreamingMode != agent.StreamingModeNone {
				chunk := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, response)
				if err := agent.EmitEvent(ctx, eventChan, chunk); err != nil {
					return nil, err
				}
			}
			continue
		}
		final = response
	}
	if err := agent.CheckContextCancelled(ctx); err != nil {
		return nil, err
	}
	return final, nil
}

// initialContents assembles the conversation for this turn: the injected
// system instruction, the visible session history, and the triggering
// message when the history does not already end with it.
func (f *Flow) initialContents(invocation *agent.Invocation) []model.Content {
	var contents []model.Content
	if f.opts.Instruction != "" {
		contents = append(contents, model.NewSystemContent(state.Inject(f.opts.Instruction, invocation.State)))
	}
	contents = append(contents, f.historyContents(invocation)...)

	message := invocation.Message
	if len(message.Parts) == 0 {
		return contents
	}
	if n := len(contents); n > 0 {
		last := contents[n-1]
		if last.Role == message.Role && last.Text() == message.Text() {
			return contents
		}
	}
	return append(contents, message)
}

func (f *Flow) historyContents(invocation *agent.Invocation) []model.Content {
	if invocation.Session == nil {
		return nil
	}
	var contents []model.Content
	for i := range invocation.Session.Events {
		evt := &invocation.Session.Events[i]
		if !evt.Filter(invocation.Branch) {
			continue
		}
		if evt.Response == nil || evt.Response.Partial || !evt.Response.IsValidContent() {
			continue
		}
		contents = append(contents, *evt.Content.Clone())
	}
	return contents
}

func (f *Flow) requestConfig(invocation *agent.Invocation) model.GenerationConfig {
	cfg := f.opts.GenerationConfig
	cfg.Stream = invocation.RunOptions.StreamingMode != agent.StreamingModeNone
	return cfg
}

// applyOutputKey stores the final response text into the working state and
// records the same delta on the event for the session commit.
func (f *Flow) applyOutputKey(invocation *agent.Invocation, rsp *model.Response, evt *event.Event) {
	if f.opts.OutputKey == "" || rsp.Error != nil {
		return
	}
	text := rsp.Content.Text()
	if text == "" {
		return
	}
	value, err := json.Marshal(text)
	if err != nil {
		log.Errorf("flow for agent %s: encode output for key %s: %v", invocation.AgentName, f.opts.OutputKey, err)
		return
	}
	if evt.StateDelta == nil {
		evt.StateDelta = make(map[string][]byte)
	}
	evt.StateDelta[f.opts.OutputKey] = value
	if invocation.State != nil {
		invocation.State.Set(f.opts.OutputKey, value)
	}
}

func (f *Flow) emitFlowError(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
	err error,
) {
	// Cancellation is the client closing the stream, not a failure.
	if errors.Is(err, context.Canceled) {
		log.Debugf("flow for agent %s: context cancelled", invocation.AgentName)
		return
	}
	log.Errorf("flow for agent %s: %v", invocation.AgentName, err)
	agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(
		invocation.InvocationID,
		invocation.AgentName,
		model.ErrorTypeFlowError,
		err.Error(),
	))
}
