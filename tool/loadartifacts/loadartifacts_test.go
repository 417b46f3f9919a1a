//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package loadartifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/artifact"
	artifactinmemory "trpc.group/trpc-go/trpc-adk-go/artifact/inmemory"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

func artifactContext(t *testing.T, service artifact.Service) (context.Context, artifact.SessionInfo) {
	t.Helper()
	sess := &session.Session{
		ID:      "s1",
		AppName: "demo-app",
		UserID:  "u1",
		State:   session.StateMap{},
	}
	invocation := agent.NewInvocation(
		agent.WithInvocationSession(sess),
		agent.WithInvocationArtifactService(service),
	)
	ctx := agent.NewInvocationContext(context.Background(), invocation)
	info := artifact.SessionInfo{AppName: sess.AppName, UserID: sess.UserID, SessionID: sess.ID}
	return ctx, info
}

func TestDeclaration(t *testing.T) {
	decl := New().Declaration()
	assert.Equal(t, "load_artifacts", decl.Name)
	require.NotNil(t, decl.InputSchema)
	require.Contains(t, decl.InputSchema.Properties, "artifact_names")
	assert.Equal(t, "array", decl.InputSchema.Properties["artifact_names"].Type)
}

func TestListAvailableArtifacts(t *testing.T) {
	service := artifactinmemory.NewService()
	ctx, info := artifactContext(t, service)

	_, err := service.SaveArtifact(ctx, info, "notes.txt", &artifact.Artifact{
		Data: []byte("remember the milk"), MimeType: "text/plain",
	})
	require.NoError(t, err)
	_, err = service.SaveArtifact(ctx, info, "chart.png", &artifact.Artifact{
		Data: []byte{0x89, 0x50}, MimeType: "image/png",
	})
	require.NoError(t, err)

	result, err := New().Call(ctx, []byte(`{}`))
	require.NoError(t, err)
	rsp, ok := result.(Response)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"notes.txt", "chart.png"}, rsp.ArtifactNames)
	assert.Empty(t, rsp.Artifacts)
	assert.Empty(t, rsp.Missing)
}

func TestLoadRequestedArtifacts(t *testing.T) {
	service := artifactinmemory.NewService()
	ctx, info := artifactContext(t, service)

	_, err := service.SaveArtifact(ctx, info, "notes.txt", &artifact.Artifact{
		Data: []byte("old"), MimeType: "text/plain",
	})
	require.NoError(t, err)
	_, err = service.SaveArtifact(ctx, info, "notes.txt", &artifact.Artifact{
		Data: []byte("remember the milk"), MimeType: "text/plain",
	})
	require.NoError(t, err)
	_, err = service.SaveArtifact(ctx, info, "chart.png", &artifact.Artifact{
		Data: []byte{0x89, 0x50, 0x4e, 0x47}, MimeType: "image/png",
	})
	require.NoError(t, err)

	result, err := New().Call(ctx, []byte(`{"artifact_names":["notes.txt","chart.png","missing.csv"]}`))
	require.NoError(t, err)
	rsp, ok := result.(Response)
	require.True(t, ok)

	notes := rsp.Artifacts["notes.txt"]
	assert.Equal(t, "remember the milk", notes.Text)
	assert.Empty(t, notes.Data)

	chart := rsp.Artifacts["chart.png"]
	assert.Empty(t, chart.Text)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, chart.Data)

	assert.Equal(t, []string{"missing.csv"}, rsp.Missing)
}

func TestCallWithoutArtifactService(t *testing.T) {
	sess := &session.Session{ID: "s1", AppName: "demo-app", UserID: "u1", State: session.StateMap{}}
	invocation := agent.NewInvocation(agent.WithInvocationSession(sess))
	ctx := agent.NewInvocationContext(context.Background(), invocation)

	_, err := New().Call(ctx, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no artifact service configured")
}

func TestCallWithoutInvocation(t *testing.T) {
	_, err := New().Call(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session in scope")
}
