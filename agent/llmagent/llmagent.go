//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package llmagent provides the model-backed leaf agent.
package llmagent

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/guardrail"
	"trpc.group/trpc-go/trpc-adk-go/internal/flow/llmflow"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
	"trpc.group/trpc-go/trpc-adk-go/tool/transfer"
)

const defaultChannelBufferSize = 256

// blockedResponse is returned when input guardrails reject a request.
// Failure details go to the log, not to the caller.
const blockedResponse = "I can't process that request."

// Option configures an LLMAgent.
type Option func(*Options)

// WithModel sets the model. A model is required.
func WithModel(m model.Model) Option {
	return func(opts *Options) {
		opts.Model = m
	}
}

// WithDescription sets the agent description shown to parent agents.
func WithDescription(description string) Option {
	return func(opts *Options) {
		opts.Description = description
	}
}

// WithInstruction sets the system instruction. State placeholders of the
// form {key} are injected per invocation.
func WithInstruction(instruction string) Option {
	return func(opts *Options) {
		opts.Instruction = instruction
	}
}

// WithGenerationConfig sets the generation configuration.
func WithGenerationConfig(config model.GenerationConfig) Option {
	return func(opts *Options) {
		opts.GenerationConfig = config
	}
}

// WithChannelBufferSize sets the buffer size for event channels.
func WithChannelBufferSize(size int) Option {
	return func(opts *Options) {
		opts.ChannelBufferSize = size
	}
}

// WithTools sets the tools available to the agent.
func WithTools(tools []tool.Tool) Option {
	return func(opts *Options) {
		opts.Tools = tools
	}
}

// WithToolSets sets the tool sets available to the agent. Sets are expanded
// once at construction.
func WithToolSets(toolSets []tool.ToolSet) Option {
	return func(opts *Options) {
		opts.ToolSets = toolSets
	}
}

// WithSubAgents sets the sub-agents this agent can transfer to. The
// transfer tool is added automatically when any are present.
func WithSubAgents(subAgents []agent.Agent) Option {
	return func(opts *Options) {
		opts.SubAgents = subAgents
	}
}

// WithOutputKey stores the final response text in session state under the
// given key.
func WithOutputKey(outputKey string) Option {
	return func(opts *Options) {
		opts.OutputKey = outputKey
	}
}

// WithMaxToolIterations caps model/tool rounds per turn (default 10).
func WithMaxToolIterations(n int) Option {
	return func(opts *Options) {
		opts.MaxToolIterations = n
	}
}

// WithEnableParallelTools enables parallel tool execution. By default tools
// execute serially.
func WithEnableParallelTools(enable bool) Option {
	return func(opts *Options) {
		opts.EnableParallelTools = enable
	}
}

// WithGuardrails runs the set over the triggering message before the model
// sees it. Redactions rewrite the message; filter failures block the turn
// with a canned response.
func WithGuardrails(set *guardrail.Set) Option {
	return func(opts *Options) {
		opts.Guardrails = set
	}
}

// WithAgentCallbacks sets the agent callbacks.
func WithAgentCallbacks(callbacks *agent.Callbacks) Option {
	return func(opts *Options) {
		opts.AgentCallbacks = callbacks
	}
}

// WithModelCallbacks sets the model callbacks.
func WithModelCallbacks(callbacks *model.Callbacks) Option {
	return func(opts *Options) {
		opts.ModelCallbacks = callbacks
	}
}

// WithToolCallbacks sets the tool callbacks.
func WithToolCallbacks(callbacks *tool.Callbacks) Option {
	return func(opts *Options) {
		opts.ToolCallbacks = callbacks
	}
}

// Options contains configuration for creating an LLMAgent.
type Options struct {
	// Model generates responses. Required.
	Model model.Model
	// Description is shown to parent agents choosing a transfer target.
	Description string
	// Instruction is the system instruction, with {key} state placeholders.
	Instruction string
	// GenerationConfig holds sampling parameters.
	GenerationConfig model.GenerationConfig
	// ChannelBufferSize is the event channel buffer (default 256).
	ChannelBufferSize int
	// Tools are directly available tools.
	Tools []tool.Tool
	// ToolSets are expanded into Tools at construction.
	ToolSets []tool.ToolSet
	// SubAgents are transfer targets.
	SubAgents []agent.Agent
	// OutputKey stores the final response text into session state.
	OutputKey string
	// MaxToolIterations caps model/tool rounds per turn.
	MaxToolIterations int
	// EnableParallelTools runs a round's tool calls concurrently.
	EnableParallelTools bool
	// Guardrails screen the triggering message before the model call.
	Guardrails *guardrail.Set
	// AgentCallbacks wrap the whole run.
	AgentCallbacks *agent.Callbacks
	// ModelCallbacks wrap each model call.
	ModelCallbacks *model.Callbacks
	// ToolCallbacks wrap each tool call.
	ToolCallbacks *tool.Callbacks
}

// LLMAgent is a leaf agent that answers with a model, calling tools and
// transferring to sub-agents as the model requests. It holds configuration
// only; each Run is independent.
type LLMAgent struct {
	name              string
	description       string
	m                 model.Model
	flow              *llmflow.Flow
	tools             []tool.Tool
	toolsByName       map[string]tool.Tool
	subAgents         []agent.Agent
	guardrails        *guardrail.Set
	agentCallbacks    *agent.Callbacks
	modelCallbacks    *model.Callbacks
	toolCallbacks     *tool.Callbacks
	channelBufferSize int
}

// New creates an LLMAgent. It fails when no model is configured or a tool
// name collides.
func New(name string, opts ...Option) (*LLMAgent, error) {
	options := Options{ChannelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(&options)
	}
	if name == "" {
		return nil, fmt.Errorf("llmagent: name is required")
	}
	if options.Model == nil {
		return nil, fmt.Errorf("llmagent %s: a model is required", name)
	}

	tools, err := collectTools(name, options.Tools, options.ToolSets, options.SubAgents)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Declaration().Name] = t
	}

	flow := llmflow.New(llmflow.Options{
		Instruction:       options.Instruction,
		GenerationConfig:  options.GenerationConfig,
		OutputKey:         options.OutputKey,
		MaxToolIterations: options.MaxToolIterations,
		ParallelTools:     options.EnableParallelTools,
		ChannelBufferSize: options.ChannelBufferSize,
	})

	return &LLMAgent{
		name:              name,
		description:       options.Description,
		m:                 options.Model,
		flow:              flow,
		tools:             tools,
		toolsByName:       byName,
		subAgents:         options.SubAgents,
		guardrails:        options.Guardrails,
		agentCallbacks:    options.AgentCallbacks,
		modelCallbacks:    options.ModelCallbacks,
		toolCallbacks:     options.ToolCallbacks,
		channelBufferSize: options.ChannelBufferSize,
	}, nil
}

// collectTools expands tool sets, appends the transfer tool when sub-agents
// exist, and rejects duplicate declaration names.
func collectTools(agentName string, tools []tool.Tool, toolSets []tool.ToolSet, subAgents []agent.Agent) ([]tool.Tool, error) {
	all := make([]tool.Tool, 0, len(tools))
	all = append(all, tools...)

	ctx := context.Background()
	for _, set := range toolSets {
		all = append(all, set.Tools(ctx)...)
	}

	if len(subAgents) > 0 {
		infos := make([]agent.Info, len(subAgents))
		for i, sub := range subAgents {
			infos[i] = sub.Info()
		}
		all = append(all, transfer.New(infos))
	}

	seen := make(map[string]bool, len(all))
	for _, t := range all {
		name := t.Declaration().Name
		if seen[name] {
			return nil, fmt.Errorf("llmagent %s: duplicate tool name %q", agentName, name)
		}
		seen[name] = true
	}
	return all, nil
}

// Run implements the agent.Agent interface.
func (a *LLMAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	a.prepareInvocation(invocation)
	ctx = agent.NewInvocationContext(ctx, invocation)

	if blocked, ch := a.screenInput(ctx, invocation); blocked {
		return ch, nil
	}

	if invocation.AgentCallbacks != nil {
		custom, err := invocation.AgentCallbacks.RunBeforeAgent(ctx, invocation)
		if err != nil {
			return singleEvent(event.NewErrorEvent(invocation.InvocationID, invocation.AgentName,
				agent.ErrorTypeAgentCallbackError, fmt.Sprintf("before agent callback: %v", err))), nil
		}
		if custom != nil {
			return singleEvent(event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, custom)), nil
		}
	}

	flowCh, err := a.flow.Run(ctx, invocation, a.toolsByName)
	if err != nil {
		return nil, err
	}
	if invocation.AgentCallbacks == nil {
		return flowCh, nil
	}
	return a.wrapAfterCallbacks(ctx, invocation, flowCh), nil
}

// prepareInvocation fills invocation fields the agent owns when the caller
// left them unset.
func (a *LLMAgent) prepareInvocation(invocation *agent.Invocation) {
	if invocation.Agent == nil {
		invocation.Agent = a
	}
	if invocation.AgentName == "" {
		invocation.AgentName = a.name
	}
	if invocation.Model == nil {
		invocation.Model = a.m
	}
	if invocation.AgentCallbacks == nil {
		invocation.AgentCallbacks = a.agentCallbacks
	}
	if invocation.ModelCallbacks == nil {
		invocation.ModelCallbacks = a.modelCallbacks
	}
	if invocation.ToolCallbacks == nil {
		invocation.ToolCallbacks = a.toolCallbacks
	}
}

// screenInput runs configured guardrails over the triggering message.
// Returns a ready channel when the message is blocked.
func (a *LLMAgent) screenInput(ctx context.Context, invocation *agent.Invocation) (bool, <-chan *event.Event) {
	if a.guardrails.Empty() || len(invocation.Message.Parts) == 0 {
		return false, nil
	}
	result, err := guardrail.Run(ctx, a.guardrails, invocation.Message)
	if err != nil {
		return true, singleEvent(event.NewErrorEvent(invocation.InvocationID, invocation.AgentName,
			model.ErrorTypeFlowError, fmt.Sprintf("guardrail run: %v", err)))
	}
	if !result.Passed {
		for _, failure := range result.Failures {
			log.Warnf("agent %s: input blocked by guardrail %s (%s): %s",
				invocation.AgentName, failure.Name, failure.Severity, failure.Reason)
		}
		return true, singleEvent(event.NewResponseEvent(invocation.InvocationID, invocation.AgentName,
			model.NewTextResponse(blockedResponse)))
	}
	if result.TransformedContent != nil {
		invocation.Message = *result.TransformedContent
	}
	return false, nil
}

// wrapAfterCallbacks forwards flow events and appends the outcome of the
// after-agent callbacks.
func (a *LLMAgent) wrapAfterCallbacks(
	ctx context.Context,
	invocation *agent.Invocation,
	flowCh <-chan *event.Event,
) <-chan *event.Event {
	out := make(chan *event.Event, a.channelBufferSize)
	go func() {
		defer close(out)
		for evt := range flowCh {
			if err := agent.EmitEvent(ctx, out, evt); err != nil {
				return
			}
		}
		custom, err := invocation.AgentCallbacks.RunAfterAgent(ctx, invocation, nil)
		if err != nil {
			errEvent := event.NewErrorEvent(invocation.InvocationID, invocation.AgentName,
				agent.ErrorTypeAgentCallbackError, fmt.Sprintf("after agent callback: %v", err))
			_ = agent.EmitEvent(ctx, out, errEvent)
			return
		}
		if custom != nil {
			customEvent := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, custom)
			_ = agent.EmitEvent(ctx, out, customEvent)
		}
	}()
	return out
}

func singleEvent(evt *event.Event) <-chan *event.Event {
	ch := make(chan *event.Event, 1)
	ch <- evt
	close(ch)
	return ch
}

// Info implements the agent.Agent interface.
func (a *LLMAgent) Info() agent.Info {
	return agent.Info{
		Name:        a.name,
		Description: a.description,
	}
}

// Tools implements the agent.Agent interface.
func (a *LLMAgent) Tools() []tool.Tool {
	return a.tools
}

// SubAgents implements the agent.Agent interface.
func (a *LLMAgent) SubAgents() []agent.Agent {
	return a.subAgents
}

// FindSubAgent implements the agent.Agent interface.
func (a *LLMAgent) FindSubAgent(name string) agent.Agent {
	return agent.FindSubAgentByName(a.subAgents, name)
}
