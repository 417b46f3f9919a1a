//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package sequentialagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/agent/customagent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// failingAgent rejects every run before producing any events.
type failingAgent struct {
	name string
}

func (f *failingAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	return nil, errors.New("startup failure")
}

func (f *failingAgent) Tools() []tool.Tool              { return nil }
func (f *failingAgent) Info() agent.Info                { return agent.Info{Name: f.name} }
func (f *failingAgent) SubAgents() []agent.Agent        { return nil }
func (f *failingAgent) FindSubAgent(string) agent.Agent { return nil }

func textAgent(t *testing.T, name, text string) *customagent.CustomAgent {
	t.Helper()
	a, err := customagent.New(name, func(context.Context, *agent.Invocation) (*model.Content, map[string][]byte, error) {
		content := model.NewModelContent(model.NewTextPart(text))
		return &content, nil, nil
	})
	require.NoError(t, err)
	return a
}

func runSequence(t *testing.T, a *SequentialAgent) (*agent.Invocation, []*event.Event) {
	t.Helper()
	invocation := agent.NewInvocation(
		agent.WithInvocationID("inv-seq"),
		agent.WithInvocationAgent(a),
	)
	ch, err := a.Run(context.Background(), invocation)
	require.NoError(t, err)
	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	return invocation, events
}

func TestRunsStepsInDeclaredOrder(t *testing.T) {
	first, err := customagent.New("first", func(ctx context.Context, inv *agent.Invocation) (*model.Content, map[string][]byte, error) {
		content := model.NewModelContent(model.NewTextPart("step1"))
		return &content, map[string][]byte{"k": []byte(`"v1"`)}, nil
	})
	require.NoError(t, err)
	second, err := customagent.New("second", func(ctx context.Context, inv *agent.Invocation) (*model.Content, map[string][]byte, error) {
		value, ok := inv.State.Get("k")
		if !ok {
			return nil, nil, errors.New("key k not visible to second step")
		}
		var decoded string
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, nil, err
		}
		content := model.NewModelContent(model.NewTextPart("step2-" + decoded))
		return &content, nil, nil
	})
	require.NoError(t, err)

	seq, err := New("pipeline", WithSubAgents(first, second))
	require.NoError(t, err)

	invocation, events := runSequence(t, seq)
	require.Len(t, events, 2)
	assert.Equal(t, "step1", events[0].Content.Text())
	assert.Equal(t, "step2-v1", events[1].Content.Text())

	value, ok := invocation.State.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte(`"v1"`), value)
}

func TestSubAgentRunErrorStopsSequence(t *testing.T) {
	seq, err := New("pipeline", WithSubAgents(
		&failingAgent{name: "broken"},
		textAgent(t, "never", "unreachable"),
	))
	require.NoError(t, err)

	_, events := runSequence(t, seq)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, model.ErrorTypeFlowError, events[0].Error.Type)
	assert.Contains(t, events[0].Error.Message, "broken")
	assert.Contains(t, events[0].Error.Message, "startup failure")
}

func TestErrorEventDoesNotStopSequence(t *testing.T) {
	flaky, err := customagent.New("flaky", func(context.Context, *agent.Invocation) (*model.Content, map[string][]byte, error) {
		return nil, nil, errors.New("transient")
	})
	require.NoError(t, err)

	seq, err := New("pipeline", WithSubAgents(flaky, textAgent(t, "closer", "done")))
	require.NoError(t, err)

	_, events := runSequence(t, seq)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, "done", events[1].Content.Text())
}

func TestStepsShareParentBranch(t *testing.T) {
	var branches []string
	record := func(name string) *customagent.CustomAgent {
		a, err := customagent.New(name, func(ctx context.Context, inv *agent.Invocation) (*model.Content, map[string][]byte, error) {
			branches = append(branches, inv.Branch)
			return nil, nil, nil
		})
		require.NoError(t, err)
		return a
	}
	seq, err := New("pipeline", WithSubAgents(record("a"), record("b")))
	require.NoError(t, err)

	runSequence(t, seq)
	assert.Equal(t, []string{"pipeline", "pipeline"}, branches)
}

func TestBeforeAgentCallbackShortCircuits(t *testing.T) {
	callbacks := agent.NewCallbacks().RegisterBeforeAgent(
		func(ctx context.Context, invocation *agent.Invocation) (*model.Response, error) {
			return model.NewTextResponse("cached"), nil
		})
	seq, err := New("pipeline",
		WithSubAgents(textAgent(t, "step", "real work")),
		WithAgentCallbacks(callbacks))
	require.NoError(t, err)

	_, events := runSequence(t, seq)
	require.Len(t, events, 1)
	assert.Equal(t, "cached", events[0].Content.Text())
}

func TestEmptySequence(t *testing.T) {
	seq, err := New("pipeline")
	require.NoError(t, err)

	_, events := runSequence(t, seq)
	assert.Empty(t, events)
}

func TestManySteps(t *testing.T) {
	var subs []agent.Agent
	for i := 0; i < 5; i++ {
		subs = append(subs, textAgent(t, fmt.Sprintf("step-%d", i), fmt.Sprintf("text-%d", i)))
	}
	seq, err := New("pipeline", WithSubAgents(subs...))
	require.NoError(t, err)

	_, events := runSequence(t, seq)
	require.Len(t, events, 5)
	for i, evt := range events {
		assert.Equal(t, fmt.Sprintf("text-%d", i), evt.Content.Text())
	}
}

func TestInfo(t *testing.T) {
	seq, err := New("pipeline", WithSubAgents(textAgent(t, "one", "1"), textAgent(t, "two", "2")))
	require.NoError(t, err)

	info := seq.Info()
	assert.Equal(t, "pipeline", info.Name)
	assert.Contains(t, info.Description, "2 sub-agents")
	assert.Len(t, seq.SubAgents(), 2)
	assert.NotNil(t, seq.FindSubAgent("one"))
	assert.Nil(t, seq.FindSubAgent("missing"))
}

func TestNewRequiresName(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
