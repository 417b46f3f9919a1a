//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/model"
)

func TestNewEvent(t *testing.T) {
	rsp := &model.Response{
		Object:       model.ObjectTypeChatCompletion,
		Content:      &model.Content{Role: model.RoleModel, Parts: []model.Part{model.NewTextPart("hi")}},
		TurnComplete: true,
	}
	e := New("inv-1", "assistant",
		WithResponse(rsp),
		WithBranch("root.child"),
		WithStateDelta(map[string][]byte{"k": []byte(`"v"`)}),
	)

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "inv-1", e.InvocationID)
	assert.Equal(t, "assistant", e.Author)
	assert.Equal(t, "root.child", e.Branch)
	assert.Same(t, rsp, e.Response)
	assert.Equal(t, []byte(`"v"`), e.StateDelta["k"])
}

func TestNewErrorEvent(t *testing.T) {
	e := NewErrorEvent("inv-1", "worker", model.ErrorTypeFlowError, "boom")
	require.NotNil(t, e.Error)
	assert.Equal(t, model.ObjectTypeError, e.Object)
	assert.Equal(t, model.ErrorTypeFlowError, e.Error.Type)
	assert.Equal(t, "boom", e.Error.Message)
	assert.True(t, e.TurnComplete)
}

func TestEventClone(t *testing.T) {
	orig := New("inv-1", "a",
		WithResponse(&model.Response{
			Content: &model.Content{Role: model.RoleModel, Parts: []model.Part{model.NewTextPart("x")}},
		}),
		WithStateDelta(map[string][]byte{"key": []byte(`1`)}),
		WithActions(&EventActions{Escalate: true}),
	)

	clone := orig.Clone()
	require.Equal(t, orig, clone)

	clone.StateDelta["key"][0] = '2'
	clone.Actions.Escalate = false
	clone.Content.Parts[0].Text = "y"

	assert.Equal(t, []byte(`1`), orig.StateDelta["key"])
	assert.True(t, orig.Actions.Escalate)
	assert.Equal(t, "x", orig.Content.Text())

	var nilEvent *Event
	assert.Nil(t, nilEvent.Clone())
}

func TestEventFilter(t *testing.T) {
	tests := []struct {
		name        string
		eventBranch string
		filter      string
		visible     bool
	}{
		{"both empty", "", "", true},
		{"event empty", "", "a.b", true},
		{"filter empty", "a.b", "", true},
		{"exact match", "a.b", "a.b", true},
		{"event is ancestor", "a", "a.b", true},
		{"event is descendant", "a.b.c", "a.b", true},
		{"siblings", "a.b", "a.c", false},
		{"prefix but not boundary", "a.bc", "a.b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New("inv", "author", WithBranch(tt.eventBranch))
			assert.Equal(t, tt.visible, e.Filter(tt.filter))
		})
	}
}

func TestEventTransferTarget(t *testing.T) {
	e := New("inv", "router")
	assert.Empty(t, e.TransferTarget())

	e.Actions = &EventActions{TransferToAgent: "billing"}
	assert.Equal(t, "billing", e.TransferTarget())
}
