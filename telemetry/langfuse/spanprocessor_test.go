//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package langfuse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type dummyExporter struct{}

func (dummyExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (dummyExporter) Shutdown(context.Context) error                             { return nil }

func TestNewSpanProcessor(t *testing.T) {
	sp := newSpanProcessor(dummyExporter{})
	require.NotNil(t, sp)
	require.NoError(t, sp.Shutdown(context.Background()))
}
