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
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	itelemetry "trpc.group/trpc-go/trpc-adk-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-adk-go/telemetry/tracetransform"
)

var _ sdktrace.SpanExporter = (*exporter)(nil)

var errAlreadyStarted = errors.New("already started")

// exporter uploads spans to Langfuse over OTLP HTTP, rewriting the chat and
// tool span attributes into Langfuse observation attributes on the way out.
type exporter struct {
	client otlptrace.Client

	mu      sync.RWMutex
	started bool

	startOnce sync.Once
	stopOnce  sync.Once
}

func newExporter(ctx context.Context, opts ...otlptracehttp.Option) (*exporter, error) {
	e := &exporter{client: otlptracehttp.NewClient(opts...)}
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ExportSpans uploads a batch of spans after reshaping them for Langfuse.
func (e *exporter) ExportSpans(ctx context.Context, ss []sdktrace.ReadOnlySpan) error {
	protoSpans := transform(tracetransform.Spans(ss))
	if len(protoSpans) == 0 {
		return nil
	}
	if err := e.client.UploadTraces(ctx, protoSpans); err != nil {
		return fmt.Errorf("exporting spans: uploading traces: %w", err)
	}
	return nil
}

func transform(ss []*tracepb.ResourceSpans) []*tracepb.ResourceSpans {
	for _, rs := range ss {
		if rs == nil {
			continue
		}
		for _, scopeSpans := range rs.GetScopeSpans() {
			if scopeSpans == nil {
				continue
			}
			for _, span := range scopeSpans.GetSpans() {
				if span != nil {
					transformSpan(span)
				}
			}
		}
	}
	return ss
}

// transformSpan rewrites a span in place according to its gen_ai operation.
func transformSpan(span *tracepb.Span) {
	switch attributeString(span, itelemetry.KeyGenAIOperationName) {
	case itelemetry.OperationChat:
		transformChat(span)
	case itelemetry.OperationExecuteTool:
		transformExecuteTool(span)
	}
}

// transformChat marks a chat span as a Langfuse generation. The serialized
// model request and response move to the observation input and output, and
// the generation config fields are lifted out of the request into the model
// parameters.
func transformChat(span *tracepb.Span) {
	attrs := []*commonpb.KeyValue{stringAttribute(observationType, "generation")}
	if name := attributeString(span, itelemetry.KeyGenAIRequestModel); name != "" {
		attrs = append(attrs, stringAttribute(observationModel, name))
	}
	for _, attr := range span.GetAttributes() {
		switch attr.GetKey() {
		case itelemetry.KeyLLMRequest:
			request := attributeValue(attr)
			attrs = append(attrs, stringAttribute(observationInput, request))
			if params := generationParameters(request); params != "" {
				attrs = append(attrs, stringAttribute(observationModelParameters, params))
			}
		case itelemetry.KeyLLMResponse:
			attrs = append(attrs, stringAttribute(observationOutput, attributeValue(attr)))
		default:
			attrs = append(attrs, attr)
		}
	}
	span.Attributes = attrs
}

// transformExecuteTool marks an execute_tool span as a Langfuse tool
// observation with the call arguments as input and the result as output.
func transformExecuteTool(span *tracepb.Span) {
	attrs := []*commonpb.KeyValue{stringAttribute(observationType, "tool")}
	for _, attr := range span.GetAttributes() {
		switch attr.GetKey() {
		case itelemetry.KeyToolCallArguments:
			attrs = append(attrs, stringAttribute(observationInput, attributeValue(attr)))
		case itelemetry.KeyToolCallResult:
			attrs = append(attrs, stringAttribute(observationOutput, attributeValue(attr)))
		default:
			attrs = append(attrs, attr)
		}
	}
	span.Attributes = attrs
}

// generationKeys are the generation config fields serialized at the top level
// of a model request.
var generationKeys = []string{
	"stream", "temperature", "top_p", "top_k", "max_output_tokens", "stop", "response_schema",
}

// generationParameters extracts the generation config fields from a
// serialized model request. It returns empty when the request carries none.
func generationParameters(request string) string {
	var req map[string]json.RawMessage
	if err := json.Unmarshal([]byte(request), &req); err != nil {
		return ""
	}
	params := make(map[string]json.RawMessage, len(generationKeys))
	for _, key := range generationKeys {
		if v, ok := req[key]; ok {
			params[key] = v
		}
	}
	if len(params) == 0 {
		return ""
	}
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(data)
}

// attributeString returns the string value of the named attribute, or empty
// when the span does not carry it.
func attributeString(span *tracepb.Span, key string) string {
	for _, attr := range span.GetAttributes() {
		if attr.GetKey() == key {
			return attr.GetValue().GetStringValue()
		}
	}
	return ""
}

// attributeValue returns the attribute's string value, substituting a
// placeholder for empty values so the observation never renders blank.
func attributeValue(attr *commonpb.KeyValue) string {
	if v := attr.GetValue().GetStringValue(); v != "" {
		return v
	}
	return "N/A"
}

func stringAttribute(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

// Start establishes the connection to the Langfuse endpoint.
func (e *exporter) Start(ctx context.Context) error {
	err := errAlreadyStarted
	e.startOnce.Do(func() {
		e.mu.Lock()
		e.started = true
		e.mu.Unlock()
		err = e.client.Start(ctx)
	})
	return err
}

// Shutdown flushes all pending exports and closes the connection.
func (e *exporter) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	started := e.started
	e.mu.RUnlock()
	if !started {
		return nil
	}

	var err error
	e.stopOnce.Do(func() {
		err = e.client.Stop(ctx)
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
	})
	return err
}

// MarshalLog is the marshaling function used by the logging system to
// represent this exporter.
func (e *exporter) MarshalLog() any {
	return struct {
		Type   string
		Client otlptrace.Client
	}{
		Type:   "otlptrace",
		Client: e.client,
	}
}
