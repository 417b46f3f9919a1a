//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package conditionalagent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Route binds a classification label to a sub-agent. Labels are matched
// case-insensitively by substring, in declared order.
type Route struct {
	Label string
	Agent agent.Agent
}

// WithRoute adds a labeled route. Declaration order is the match order.
func WithRoute(label string, target agent.Agent) Option {
	return func(opts *Options) {
		opts.routes = append(opts.routes, Route{Label: label, Agent: target})
	}
}

// WithDefaultRoute sets the agent used when no label matches or the
// classification call fails.
func WithDefaultRoute(target agent.Agent) Option {
	return func(opts *Options) {
		opts.defaultAgent = target
	}
}

// LlmConditionalAgent routes each invocation with a classification model
// call. The model is asked to answer with a route label; the reply is
// trimmed, lowercased and matched against the declared routes by substring.
// An unrecognized label or a failed classification falls back to the
// default route.
type LlmConditionalAgent struct {
	name              string
	description       string
	m                 model.Model
	instruction       string
	routes            []Route
	defaultAgent      agent.Agent
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*LlmConditionalAgent)(nil)

// NewLlmConditional creates an LlmConditionalAgent. The instruction should
// tell the model to answer with exactly one route label.
func NewLlmConditional(name string, m model.Model, instruction string, opts ...Option) (*LlmConditionalAgent, error) {
	if name == "" {
		return nil, errors.New("conditionalagent: name is required")
	}
	if m == nil {
		return nil, fmt.Errorf("llm conditional agent %s: a model is required", name)
	}
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("llm conditional agent %s: an instruction is required", name)
	}
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	if len(options.routes) == 0 {
		return nil, fmt.Errorf("llm conditional agent %s: at least one route is required", name)
	}
	routes := make([]Route, 0, len(options.routes))
	for _, route := range options.routes {
		label := strings.ToLower(strings.TrimSpace(route.Label))
		if label == "" {
			return nil, fmt.Errorf("llm conditional agent %s: route label is empty", name)
		}
		if route.Agent == nil {
			return nil, fmt.Errorf("llm conditional agent %s: route %q has no agent", name, route.Label)
		}
		routes = append(routes, Route{Label: label, Agent: route.Agent})
	}
	if options.channelBufferSize <= 0 {
		options.channelBufferSize = defaultChannelBufferSize
	}
	return &LlmConditionalAgent{
		name:              name,
		description:       options.description,
		m:                 m,
		instruction:       instruction,
		routes:            routes,
		defaultAgent:      options.defaultAgent,
		channelBufferSize: options.channelBufferSize,
		agentCallbacks:    options.agentCallbacks,
	}, nil
}

// Run implements the agent.Agent interface.
func (a *LlmConditionalAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	if invocation.Agent == nil {
		invocation.Agent = a
	}
	if invocation.AgentName == "" {
		invocation.AgentName = a.name
	}
	if invocation.AgentCallbacks == nil {
		invocation.AgentCallbacks = a.agentCallbacks
	}
	ctx = agent.NewInvocationContext(ctx, invocation)

	eventChan := make(chan *event.Event, a.channelBufferSize)
	go a.executeRoute(ctx, invocation, eventChan)
	return eventChan, nil
}

func (a *LlmConditionalAgent) executeRoute(
	ctx context.Context,
	invocation *agent.Invocation,
	eventChan chan<- *event.Event,
) {
	defer close(eventChan)

	if stop := handleBeforeAgentCallbacks(ctx, a.name, invocation, eventChan); stop {
		return
	}

	label, err := a.classify(ctx, invocation)
	var target agent.Agent
	if err != nil {
		if a.defaultAgent == nil {
			agent.EmitEvent(ctx, eventChan, event.NewErrorEvent(invocation.InvocationID, a.name,
				model.ErrorTypeFlowError, fmt.Sprintf("classification failed: %v", err)))
			return
		}
		log.Warnf("llm conditional agent %s: classification failed, taking default route: %v", a.name, err)
		target = a.defaultAgent
		label = a.defaultAgent.Info().Name
	} else {
		target = a.resolveRoute(label)
	}
	if target == nil {
		noRoute := model.NewTextResponse(fmt.Sprintf(
			"No route found for classification %q. Available routes: %v", label, a.routeLabels()))
		agent.EmitEvent(ctx, eventChan,
			event.NewResponseEvent(invocation.InvocationID, a.name, noRoute))
		handleAfterAgentCallbacks(ctx, a.name, invocation, eventChan)
		return
	}

	notice := model.NewTextResponse(fmt.Sprintf("[Routing to: %s]", label))
	notice.Object = model.ObjectTypeTransfer
	routingEvent := event.NewResponseEvent(invocation.InvocationID, a.name, notice)
	routingEvent.Actions = &event.EventActions{TransferToAgent: target.Info().Name}
	if emitErr := agent.EmitEvent(ctx, eventChan, routingEvent); emitErr != nil {
		return
	}

	if ok := dispatch(ctx, a.name, invocation, target, eventChan); !ok {
		return
	}

	handleAfterAgentCallbacks(ctx, a.name, invocation, eventChan)
}

// classify asks the model for a route label and normalizes the answer.
func (a *LlmConditionalAgent) classify(ctx context.Context, invocation *agent.Invocation) (string, error) {
	prompt := fmt.Sprintf("%s\n\nUser input: %s", a.instruction, invocation.Message.Text())
	request := &model.Request{
		Contents: []model.Content{model.NewUserContent(model.NewTextPart(prompt))},
	}
	responseChan, err := a.m.GenerateContent(ctx, request)
	if err != nil {
		return "", err
	}
	var final *model.Response
	for response := range responseChan {
		if response == nil {
			continue
		}
		if response.Error != nil {
			return "", errors.New(response.Error.Message)
		}
		if response.Partial {
			continue
		}
		final = response
	}
	if final == nil || final.Content == nil {
		return "", errors.New("classification returned no content")
	}
	return strings.ToLower(strings.TrimSpace(final.Content.Text())), nil
}

// resolveRoute matches the label against declared routes, then the default.
func (a *LlmConditionalAgent) resolveRoute(label string) agent.Agent {
	for _, route := range a.routes {
		if strings.Contains(label, route.Label) {
			return route.Agent
		}
	}
	return a.defaultAgent
}

func (a *LlmConditionalAgent) routeLabels() []string {
	labels := make([]string, 0, len(a.routes))
	for _, route := range a.routes {
		labels = append(labels, route.Label)
	}
	return labels
}

// Tools implements the agent.Agent interface.
func (a *LlmConditionalAgent) Tools() []tool.Tool {
	return nil
}

// Info implements the agent.Agent interface.
func (a *LlmConditionalAgent) Info() agent.Info {
	description := a.description
	if description == "" {
		description = fmt.Sprintf("Routes requests across %d labeled routes", len(a.routes))
	}
	return agent.Info{
		Name:        a.name,
		Description: description,
	}
}

// SubAgents implements the agent.Agent interface.
func (a *LlmConditionalAgent) SubAgents() []agent.Agent {
	subAgents := make([]agent.Agent, 0, len(a.routes)+1)
	for _, route := range a.routes {
		subAgents = append(subAgents, route.Agent)
	}
	if a.defaultAgent != nil {
		subAgents = append(subAgents, a.defaultAgent)
	}
	return subAgents
}

// FindSubAgent implements the agent.Agent interface.
func (a *LlmConditionalAgent) FindSubAgent(name string) agent.Agent {
	return agent.FindSubAgentByName(a.SubAgents(), name)
}
