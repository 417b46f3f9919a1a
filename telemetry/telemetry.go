//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry starts the trace and metric pipelines in one call.
// Applications that need only one of the two, or finer control over
// endpoints and headers, can use the trace and metric subpackages directly.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-adk-go/telemetry/trace"
)

// Start initializes trace and metric export. The returned cleanup shuts
// down both pipelines and joins their errors.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}

	var traceOpts []trace.Option
	if endpoint := firstNonEmpty(options.tracesEndpoint, options.endpoint); endpoint != "" {
		traceOpts = append(traceOpts, trace.WithEndpoint(endpoint))
	}
	if options.protocol != "" {
		traceOpts = append(traceOpts, trace.WithProtocol(options.protocol))
	}
	cleanTrace, err := trace.Start(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start trace export: %w", err)
	}

	var metricOpts []metric.Option
	if endpoint := firstNonEmpty(options.metricsEndpoint, options.endpoint); endpoint != "" {
		metricOpts = append(metricOpts, metric.WithEndpoint(endpoint))
	}
	if options.protocol != "" {
		metricOpts = append(metricOpts, metric.WithProtocol(options.protocol))
	}
	cleanMetric, err := metric.Start(ctx, metricOpts...)
	if err != nil {
		// Roll back the trace pipeline when metric startup fails.
		cleanErr := cleanTrace()
		return nil, errors.Join(fmt.Errorf("failed to start metric export: %w", err), cleanErr)
	}

	return func() error {
		return errors.Join(cleanTrace(), cleanMetric())
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Option configures the combined telemetry bootstrap.
type Option func(*options)

type options struct {
	endpoint        string
	tracesEndpoint  string
	metricsEndpoint string
	protocol        string
}

// WithEndpoint sets the endpoint (host and port) for both traces and
// metrics. The provided endpoint should resemble "example.com:4317"
// (no scheme or path).
func WithEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.endpoint = endpoint
	}
}

// WithTracesEndpoint sets the traces endpoint, overriding WithEndpoint.
func WithTracesEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.tracesEndpoint = endpoint
	}
}

// WithMetricsEndpoint sets the metrics endpoint, overriding WithEndpoint.
func WithMetricsEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.metricsEndpoint = endpoint
	}
}

// WithProtocol sets the export protocol for both pipelines.
// Supported protocols are "grpc" (default) and "http".
func WithProtocol(protocol string) Option {
	return func(opts *options) {
		opts.protocol = protocol
	}
}
