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
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/model/mock"
)

const routingInstruction = "Classify the user request as either 'billing' or 'support'. " +
	"Answer with only the category name."

func TestRoutesByClassificationLabel(t *testing.T) {
	var billingRuns, supportRuns atomic.Int32
	billing := countedAgent(t, "billing-desk", "billing reply", &billingRuns)
	support := countedAgent(t, "support-desk", "support reply", &supportRuns)

	router, err := NewLlmConditional("router",
		mock.New(mock.WithResponseText("billing")),
		routingInstruction,
		WithRoute("billing", billing),
		WithRoute("support", support))
	require.NoError(t, err)

	events := runConditional(t, router, "why was I charged twice?")
	require.Len(t, events, 2)

	assert.Equal(t, model.ObjectTypeTransfer, events[0].Object)
	assert.Equal(t, "[Routing to: billing]", events[0].Content.Text())
	require.NotNil(t, events[0].Actions)
	assert.Equal(t, "billing-desk", events[0].Actions.TransferToAgent)
	assert.Equal(t, "billing-desk", events[0].TransferTarget())

	assert.Equal(t, "billing reply", events[1].Content.Text())
	assert.Equal(t, int32(1), billingRuns.Load())
	assert.Equal(t, int32(0), supportRuns.Load())
}

func TestClassificationIsNormalized(t *testing.T) {
	var runs atomic.Int32
	router, err := NewLlmConditional("router",
		mock.New(mock.WithResponseText("  BILLING \n")),
		routingInstruction,
		WithRoute("Billing", countedAgent(t, "billing-desk", "ok", &runs)))
	require.NoError(t, err)

	events := runConditional(t, router, "charge question")
	require.Len(t, events, 2)
	assert.Equal(t, "[Routing to: billing]", events[0].Content.Text())
	assert.Equal(t, int32(1), runs.Load())
}

func TestSubstringMatchOverVerboseAnswer(t *testing.T) {
	var runs atomic.Int32
	router, err := NewLlmConditional("router",
		mock.New(mock.WithResponseText("This looks like a support request.")),
		routingInstruction,
		WithRoute("billing", countedAgent(t, "billing-desk", "billing", new(atomic.Int32))),
		WithRoute("support", countedAgent(t, "support-desk", "support reply", &runs)))
	require.NoError(t, err)

	events := runConditional(t, router, "my app crashes")
	require.Len(t, events, 2)
	assert.Equal(t, "support reply", events[1].Content.Text())
	assert.Equal(t, int32(1), runs.Load())
}

func TestDeclaredOrderBreaksTies(t *testing.T) {
	var shortRuns, longRuns atomic.Int32
	router, err := NewLlmConditional("router",
		mock.New(mock.WithResponseText("billing")),
		routingInstruction,
		WithRoute("bill", countedAgent(t, "short-label", "short wins", &shortRuns)),
		WithRoute("billing", countedAgent(t, "long-label", "long wins", &longRuns)))
	require.NoError(t, err)

	events := runConditional(t, router, "question")
	require.Len(t, events, 2)
	assert.Equal(t, "short wins", events[1].Content.Text())
	assert.Equal(t, int32(1), shortRuns.Load())
	assert.Equal(t, int32(0), longRuns.Load())
}

func TestUnrecognizedLabelFallsBackToDefault(t *testing.T) {
	var fallbackRuns atomic.Int32
	router, err := NewLlmConditional("router",
		mock.New(mock.WithResponseText("gibberish")),
		routingInstruction,
		WithRoute("billing", countedAgent(t, "billing-desk", "billing", new(atomic.Int32))),
		WithDefaultRoute(countedAgent(t, "catch-all", "default reply", &fallbackRuns)))
	require.NoError(t, err)

	events := runConditional(t, router, "unclassifiable")
	require.Len(t, events, 2)
	assert.Equal(t, "[Routing to: gibberish]", events[0].Content.Text())
	require.NotNil(t, events[0].Actions)
	assert.Equal(t, "catch-all", events[0].Actions.TransferToAgent)
	assert.Equal(t, "default reply", events[1].Content.Text())
	assert.Equal(t, int32(1), fallbackRuns.Load())
}

func TestUnrecognizedLabelWithoutDefault(t *testing.T) {
	router, err := NewLlmConditional("router",
		mock.New(mock.WithResponseText("gibberish")),
		routingInstruction,
		WithRoute("billing", countedAgent(t, "billing-desk", "billing", new(atomic.Int32))))
	require.NoError(t, err)

	events := runConditional(t, router, "unclassifiable")
	require.Len(t, events, 1)
	text := events[0].Content.Text()
	assert.Contains(t, text, `No route found for classification "gibberish"`)
	assert.Contains(t, text, "billing")
}

func TestClassificationFailureTakesDefaultRoute(t *testing.T) {
	var fallbackRuns atomic.Int32
	router, err := NewLlmConditional("router",
		mock.New(mock.WithError(errors.New("provider down"))),
		routingInstruction,
		WithRoute("billing", countedAgent(t, "billing-desk", "billing", new(atomic.Int32))),
		WithDefaultRoute(countedAgent(t, "catch-all", "default reply", &fallbackRuns)))
	require.NoError(t, err)

	events := runConditional(t, router, "anything")
	require.Len(t, events, 2)
	assert.Equal(t, "[Routing to: catch-all]", events[0].Content.Text())
	assert.Equal(t, "default reply", events[1].Content.Text())
	assert.Equal(t, int32(1), fallbackRuns.Load())
}

func TestClassificationFailureWithoutDefault(t *testing.T) {
	router, err := NewLlmConditional("router",
		mock.New(mock.WithError(errors.New("provider down"))),
		routingInstruction,
		WithRoute("billing", countedAgent(t, "billing-desk", "billing", new(atomic.Int32))))
	require.NoError(t, err)

	events := runConditional(t, router, "anything")
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, model.ErrorTypeFlowError, events[0].Error.Type)
	assert.Contains(t, events[0].Error.Message, "classification failed")
	assert.Contains(t, events[0].Error.Message, "provider down")
}

func TestClassifierPrompt(t *testing.T) {
	m := mock.New(mock.WithResponseText("billing"))
	router, err := NewLlmConditional("router", m, routingInstruction,
		WithRoute("billing", countedAgent(t, "billing-desk", "ok", new(atomic.Int32))))
	require.NoError(t, err)

	runConditional(t, router, "why was I charged twice?")

	requests := m.Requests()
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Contents, 1)
	prompt := requests[0].Contents[0].Text()
	assert.Contains(t, prompt, routingInstruction)
	assert.Contains(t, prompt, "User input: why was I charged twice?")
	assert.Equal(t, model.RoleUser, requests[0].Contents[0].Role)
}

func TestNewLlmConditionalValidation(t *testing.T) {
	m := mock.New()
	billing := countedAgent(t, "billing-desk", "ok", new(atomic.Int32))

	_, err := NewLlmConditional("", m, routingInstruction, WithRoute("billing", billing))
	require.Error(t, err)

	_, err = NewLlmConditional("router", nil, routingInstruction, WithRoute("billing", billing))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")

	_, err = NewLlmConditional("router", m, "   ", WithRoute("billing", billing))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instruction is required")

	_, err = NewLlmConditional("router", m, routingInstruction)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one route is required")

	_, err = NewLlmConditional("router", m, routingInstruction, WithRoute("  ", billing))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route label is empty")

	_, err = NewLlmConditional("router", m, routingInstruction, WithRoute("billing", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no agent")
}

func TestRouterSubAgents(t *testing.T) {
	router, err := NewLlmConditional("router",
		mock.New(mock.WithResponseText("billing")),
		routingInstruction,
		WithRoute("billing", countedAgent(t, "billing-desk", "b", new(atomic.Int32))),
		WithRoute("support", countedAgent(t, "support-desk", "s", new(atomic.Int32))),
		WithDefaultRoute(countedAgent(t, "catch-all", "d", new(atomic.Int32))))
	require.NoError(t, err)

	assert.Len(t, router.SubAgents(), 3)
	assert.NotNil(t, router.FindSubAgent("catch-all"))
	assert.Contains(t, router.Info().Description, "2 labeled routes")
}
