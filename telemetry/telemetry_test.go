//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestStartAndClean(t *testing.T) {
	ctx := context.Background()

	clean, err := Start(ctx,
		WithTracesEndpoint("localhost:4317"),
		WithMetricsEndpoint("localhost:4317"),
	)
	require.NoError(t, err)
	require.NotNil(t, clean)
	// No collector is running, so the flush error is ignored.
	_ = clean()
}

func TestStartSharedEndpoint(t *testing.T) {
	ctx := context.Background()

	clean, err := Start(ctx, WithEndpoint("localhost:4317"))
	require.NoError(t, err)
	require.NotNil(t, clean)
	_ = clean()
}
