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
	"encoding/base64"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace/noop"

	itelemetry "trpc.group/trpc-go/trpc-adk-go/internal/telemetry"
	atrace "trpc.group/trpc-go/trpc-adk-go/telemetry/trace"
)

// Start starts trace export to Langfuse. Credentials and host come from the
// LANGFUSE_* environment variables unless overridden by options.
func Start(ctx context.Context, opts ...Option) (clean func(context.Context) error, err error) {
	config := newConfigFromEnv()
	for _, opt := range opts {
		opt(config)
	}
	if config.secretKey == "" || config.publicKey == "" || config.host == "" {
		return nil, fmt.Errorf("langfuse: secret key, public key and host must be provided")
	}

	otelOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.host),
		otlptracehttp.WithHeaders(map[string]string{
			"Authorization": fmt.Sprintf("Basic %s", encodeAuth(config.publicKey, config.secretKey)),
		}),
		otlptracehttp.WithURLPath("/api/public/otel/v1/traces"),
	}
	if config.insecure {
		otelOpts = append(otelOpts, otlptracehttp.WithInsecure())
	}
	return start(ctx, otelOpts...)
}

// start attaches a Langfuse span processor to the SDK provider installed by
// trace.Start, or builds a fresh provider when the global is still a no-op.
func start(ctx context.Context, opts ...otlptracehttp.Option) (clean func(context.Context) error, err error) {
	provider, err := sdkProvider()
	if err != nil {
		return nil, err
	}

	exp, err := newExporter(ctx, opts...)
	if err != nil {
		return nil, err
	}
	processor := newSpanProcessor(exp)
	if provider == nil {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceNamespace(itelemetry.ServiceNamespace),
				semconv.ServiceName(itelemetry.ServiceName),
				semconv.ServiceVersion(itelemetry.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(res),
			sdktrace.WithSpanProcessor(processor),
		)
		atrace.TracerProvider = provider
	} else {
		provider.RegisterSpanProcessor(processor)
	}

	atrace.Tracer = provider.Tracer(itelemetry.InstrumentName)
	return provider.Shutdown, nil
}

// sdkProvider returns the SDK tracer provider behind the global, or nil when
// the global is still the no-op default.
func sdkProvider() (*sdktrace.TracerProvider, error) {
	p := atrace.TracerProvider
	if _, ok := p.(noop.TracerProvider); ok {
		return nil, nil
	}
	provider, ok := p.(*sdktrace.TracerProvider)
	if !ok {
		return nil, fmt.Errorf("global tracer provider is not an SDK tracer provider")
	}
	return provider, nil
}

// encodeAuth encodes the public and secret keys for basic authentication.
func encodeAuth(pk, sk string) string {
	auth := pk + ":" + sk
	return base64.StdEncoding.EncodeToString([]byte(auth))
}
