//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package exitloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
)

func TestDeclaration(t *testing.T) {
	decl := New().Declaration()
	assert.Equal(t, ToolName, decl.Name)
	assert.NotEmpty(t, decl.Description)
	assert.Equal(t, "object", decl.InputSchema.Type)
}

func TestCallRaisesEscalate(t *testing.T) {
	actions := &event.EventActions{}
	ctx := agent.NewToolActionsContext(context.Background(), actions)

	result, err := New().Call(ctx, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, actions.Escalate)

	status, ok := result.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "loop exit requested", status["status"])
}

func TestCallWithoutActionsContext(t *testing.T) {
	result, err := New().Call(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
}
