//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package llmagent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/guardrail"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/model/mock"
	"trpc.group/trpc-go/trpc-adk-go/tool"
	"trpc.group/trpc-go/trpc-adk-go/tool/function"
	"trpc.group/trpc-go/trpc-adk-go/tool/transfer"
)

type echoAgent struct {
	name string
}

func (a *echoAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	ch := make(chan *event.Event, 1)
	ch <- event.NewResponseEvent(invocation.InvocationID, a.name, model.NewTextResponse("echo"))
	close(ch)
	return ch, nil
}

func (a *echoAgent) Tools() []tool.Tool                   { return nil }
func (a *echoAgent) Info() agent.Info                     { return agent.Info{Name: a.name} }
func (a *echoAgent) SubAgents() []agent.Agent             { return nil }
func (a *echoAgent) FindSubAgent(name string) agent.Agent { return nil }

type staticToolSet struct {
	name  string
	tools []tool.Tool
}

func (s *staticToolSet) Tools(ctx context.Context) []tool.Tool { return s.tools }
func (s *staticToolSet) Close() error                          { return nil }
func (s *staticToolSet) Name() string                          { return s.name }

func textTool(name string) tool.CallableTool {
	return function.New(func(ctx context.Context, in struct{}) (string, error) {
		return name, nil
	}, function.WithName(name))
}

func runAgent(t *testing.T, a *LLMAgent, text string) (*agent.Invocation, []*event.Event) {
	t.Helper()
	invocation := agent.NewInvocation(
		agent.WithInvocationAgent(a),
		agent.WithInvocationMessage(model.NewUserContent(model.NewTextPart(text))),
	)
	ch, err := a.Run(context.Background(), invocation)
	require.NoError(t, err)
	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	return invocation, events
}

func TestNewValidation(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	_, err = New("assistant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")

	_, err = New("assistant",
		WithModel(mock.New()),
		WithTools([]tool.Tool{textTool("same"), textTool("same")}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate tool name "same"`)
}

func TestRunSimple(t *testing.T) {
	m := mock.New(mock.WithResponseText("it is sunny"))
	a, err := New("assistant",
		WithModel(m),
		WithInstruction("You are a weather bot."),
		WithOutputKey("weather"),
	)
	require.NoError(t, err)

	invocation, events := runAgent(t, a, "how is the weather")
	require.Len(t, events, 1)
	assert.Equal(t, "it is sunny", events[0].Content.Text())
	assert.Equal(t, "assistant", events[0].Author)

	stored, ok := invocation.State.Get("weather")
	require.True(t, ok)
	assert.Equal(t, []byte(`"it is sunny"`), stored)

	// The instruction arrived as the leading system content.
	requests := m.Requests()
	require.Len(t, requests, 1)
	require.NotEmpty(t, requests[0].Contents)
	assert.Equal(t, model.RoleSystem, requests[0].Contents[0].Role)
}

func TestToolLoop(t *testing.T) {
	call := model.NewModelContent(model.NewFunctionCallPart("c1", "where", []byte(`{}`)))
	m := mock.New(mock.WithResponses(
		[]*model.Response{{Content: &call, TurnComplete: true}},
		[]*model.Response{model.NewTextResponse("you are in Shenzhen")},
	))
	where := function.New(func(ctx context.Context, in struct{}) (map[string]string, error) {
		return map[string]string{"city": "Shenzhen"}, nil
	}, function.WithName("where"))

	a, err := New("assistant", WithModel(m), WithTools([]tool.Tool{where}))
	require.NoError(t, err)

	_, events := runAgent(t, a, "where am I")
	require.Len(t, events, 3)
	assert.Len(t, events[0].Content.FunctionCalls(), 1)
	assert.Len(t, events[1].Content.FunctionResponses(), 1)
	assert.Equal(t, "you are in Shenzhen", events[2].Content.Text())
}

func TestToolSetExpansion(t *testing.T) {
	set := &staticToolSet{name: "pack", tools: []tool.Tool{textTool("alpha"), textTool("beta")}}
	a, err := New("assistant", WithModel(mock.New()), WithToolSets([]tool.ToolSet{set}))
	require.NoError(t, err)

	names := make([]string, 0, len(a.Tools()))
	for _, tl := range a.Tools() {
		names = append(names, tl.Declaration().Name)
	}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestTransferToolAddedWithSubAgents(t *testing.T) {
	sub := &echoAgent{name: "helper"}
	a, err := New("router", WithModel(mock.New()), WithSubAgents([]agent.Agent{sub}))
	require.NoError(t, err)

	var hasTransfer bool
	for _, tl := range a.Tools() {
		if tl.Declaration().Name == transfer.ToolName {
			hasTransfer = true
		}
	}
	assert.True(t, hasTransfer)
	assert.Same(t, sub, a.FindSubAgent("helper"))
	assert.Nil(t, a.FindSubAgent("stranger"))

	plain, err := New("leaf", WithModel(mock.New()))
	require.NoError(t, err)
	assert.Empty(t, plain.Tools())
}

func TestBeforeAgentCallbackCustom(t *testing.T) {
	m := mock.New()
	callbacks := agent.NewCallbacks().RegisterBeforeAgent(
		func(ctx context.Context, invocation *agent.Invocation) (*model.Response, error) {
			return model.NewTextResponse("cached answer"), nil
		})
	a, err := New("assistant", WithModel(m), WithAgentCallbacks(callbacks))
	require.NoError(t, err)

	_, events := runAgent(t, a, "hi")
	require.Len(t, events, 1)
	assert.Equal(t, "cached answer", events[0].Content.Text())
	assert.Equal(t, 0, m.CallCount())
}

func TestBeforeAgentCallbackError(t *testing.T) {
	m := mock.New()
	callbacks := agent.NewCallbacks().RegisterBeforeAgent(
		func(ctx context.Context, invocation *agent.Invocation) (*model.Response, error) {
			return nil, errors.New("not today")
		})
	a, err := New("assistant", WithModel(m), WithAgentCallbacks(callbacks))
	require.NoError(t, err)

	_, events := runAgent(t, a, "hi")
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, agent.ErrorTypeAgentCallbackError, events[0].Error.Type)
	assert.Contains(t, events[0].Error.Message, "not today")
	assert.Equal(t, 0, m.CallCount())
}

func TestAfterAgentCallbackAppends(t *testing.T) {
	callbacks := agent.NewCallbacks().RegisterAfterAgent(
		func(ctx context.Context, invocation *agent.Invocation, runErr error) (*model.Response, error) {
			return model.NewTextResponse("and one more thing"), nil
		})
	a, err := New("assistant",
		WithModel(mock.New(mock.WithResponseText("main answer"))),
		WithAgentCallbacks(callbacks),
	)
	require.NoError(t, err)

	_, events := runAgent(t, a, "hi")
	require.Len(t, events, 2)
	assert.Equal(t, "main answer", events[0].Content.Text())
	assert.Equal(t, "and one more thing", events[1].Content.Text())
}

func TestAfterAgentCallbackError(t *testing.T) {
	callbacks := agent.NewCallbacks().RegisterAfterAgent(
		func(ctx context.Context, invocation *agent.Invocation, runErr error) (*model.Response, error) {
			return nil, errors.New("audit failed")
		})
	a, err := New("assistant",
		WithModel(mock.New(mock.WithResponseText("main answer"))),
		WithAgentCallbacks(callbacks),
	)
	require.NoError(t, err)

	_, events := runAgent(t, a, "hi")
	require.Len(t, events, 2)
	require.NotNil(t, events[1].Error)
	assert.Equal(t, agent.ErrorTypeAgentCallbackError, events[1].Error.Type)
}

func TestGuardrailsBlockInput(t *testing.T) {
	m := mock.New()
	a, err := New("assistant",
		WithModel(m),
		WithGuardrails(guardrail.NewSet().WithContentFilter(
			guardrail.BlockedKeywords([]string{"secret plan"}))),
	)
	require.NoError(t, err)

	_, events := runAgent(t, a, "tell me the secret plan")
	require.Len(t, events, 1)
	assert.Equal(t, blockedResponse, events[0].Content.Text())
	assert.Equal(t, 0, m.CallCount())
}

func TestGuardrailsRedactInput(t *testing.T) {
	m := mock.New(mock.WithResponseText("noted"))
	a, err := New("assistant",
		WithModel(m),
		WithGuardrails(guardrail.NewSet().WithPiiRedactor(guardrail.NewPiiRedactor())),
	)
	require.NoError(t, err)

	invocation, events := runAgent(t, a, "my email is leak@example.com")
	require.Len(t, events, 1)
	assert.Equal(t, "noted", events[0].Content.Text())

	// Both the invocation message and the model request carry the
	// redacted text.
	assert.NotContains(t, invocation.Message.Text(), "leak@example.com")
	requests := m.Requests()
	require.Len(t, requests, 1)
	last := requests[0].Contents[len(requests[0].Contents)-1]
	assert.Contains(t, last.Text(), "[EMAIL]")
}

func TestInfo(t *testing.T) {
	a, err := New("assistant", WithModel(mock.New()), WithDescription("answers questions"))
	require.NoError(t, err)
	info := a.Info()
	assert.Equal(t, "assistant", info.Name)
	assert.Equal(t, "answers questions", info.Description)
}
