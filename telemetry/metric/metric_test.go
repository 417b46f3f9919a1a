//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itelemetry "trpc.group/trpc-go/trpc-adk-go/internal/telemetry"
)

func TestMetricsEndpoint(t *testing.T) {
	const (
		customEndpoint  = "custom-metric:4317"
		genericEndpoint = "generic-endpoint:4317"
	)

	// The specific variable has precedence over the generic one.
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", customEndpoint)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", genericEndpoint)
	assert.Equal(t, customEndpoint, metricsEndpoint(itelemetry.ProtocolGRPC))

	// Fallback to the generic variable when the specific one is empty.
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	assert.Equal(t, genericEndpoint, metricsEndpoint(itelemetry.ProtocolGRPC))

	// Defaults depend on the protocol when nothing is set.
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	assert.Equal(t, "localhost:4317", metricsEndpoint(itelemetry.ProtocolGRPC))
	assert.Equal(t, "localhost:4318", metricsEndpoint(itelemetry.ProtocolHTTP))
}

func TestStartAndClean(t *testing.T) {
	ctx := context.Background()

	clean, err := Start(ctx, WithEndpoint("localhost:4317"))
	require.NoError(t, err)
	require.NotNil(t, clean)
	assert.NotNil(t, Meter)
	// No collector is running, so the flush error is ignored.
	_ = clean()
}

func TestStartHTTP(t *testing.T) {
	ctx := context.Background()

	clean, err := Start(ctx,
		WithProtocol(itelemetry.ProtocolHTTP),
		WithEndpoint("localhost:4318"),
		WithHeaders(map[string]string{"Authorization": "Basic dGVzdA=="}),
	)
	require.NoError(t, err)
	require.NotNil(t, clean)
	_ = clean()
}
