//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the shared tracing vocabulary: instrument names,
// span attribute keys, and the helpers that annotate model and tool spans.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// telemetry service constants.
const (
	ServiceName      = "telemetry"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-adk"
	InstrumentName   = "trpc.adk.go"

	SpanNamePrefixChat        = "chat"
	SpanNamePrefixExecuteTool = "execute_tool"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// SystemName identifies this framework under gen_ai.system.
const SystemName = "trpc.go.adk"

// Operation names recorded under gen_ai.operation.name. The Langfuse
// exporter dispatches its span transformations on these.
const (
	OperationChat        = "chat"
	OperationExecuteTool = "execute_tool"
)

// telemetry attributes constants.
const (
	KeyGenAISystem          = "gen_ai.system"
	KeyGenAIOperationName   = "gen_ai.operation.name"
	KeyGenAIToolName        = "gen_ai.tool.name"
	KeyGenAIToolDescription = "gen_ai.tool.description"
	KeyGenAIRequestModel    = "gen_ai.request.model"

	KeyEventID           = "trpc.go.adk.event_id"
	KeySessionID         = "trpc.go.adk.session_id"
	KeyInvocationID      = "trpc.go.adk.invocation_id"
	KeyLLMRequest        = "trpc.go.adk.llm_request"
	KeyLLMResponse       = "trpc.go.adk.llm_response"
	KeyToolCallArguments = "trpc.go.adk.tool_call_args"
	KeyToolCallID        = "trpc.go.adk.tool_id"
	KeyToolCallResult    = "trpc.go.adk.tool_response"
)

// NewChatSpanName returns the span name for a model call.
func NewChatSpanName(modelName string) string {
	if modelName == "" {
		return SpanNamePrefixChat
	}
	return fmt.Sprintf("%s %s", SpanNamePrefixChat, modelName)
}

// NewExecuteToolSpanName returns the span name for a tool call.
func NewExecuteToolSpanName(toolName string) string {
	return fmt.Sprintf("%s %s", SpanNamePrefixExecuteTool, toolName)
}

// TraceToolCall annotates a span with the tool declaration, the call
// arguments and the function response carried back to the model.
func TraceToolCall(span trace.Span, declaration *tool.Declaration, args []byte, rsp *model.FunctionResponse) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemName),
		attribute.String(KeyGenAIOperationName, OperationExecuteTool),
		attribute.String(KeyGenAIToolName, declaration.Name),
		attribute.String(KeyGenAIToolDescription, declaration.Description),
	)
	if len(args) > 0 {
		// Arguments are already JSON.
		span.SetAttributes(attribute.String(KeyToolCallArguments, string(args)))
	}
	if rsp != nil {
		span.SetAttributes(attribute.String(KeyToolCallID, rsp.ID))
		if len(rsp.Response) > 0 {
			// Tool results are already JSON.
			span.SetAttributes(attribute.String(KeyToolCallResult, string(rsp.Response)))
		}
	}

	// Observability UIs expect request and response attributes on every
	// span, so tool spans carry empty placeholders.
	span.SetAttributes(
		attribute.String(KeyLLMRequest, "{}"),
		attribute.String(KeyLLMResponse, "{}"),
	)
}

// TraceMergedToolCalls annotates a span covering several parallel tool
// calls that were answered by one event.
func TraceMergedToolCalls(span trace.Span, rspEvent *event.Event) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemName),
		attribute.String(KeyGenAIOperationName, OperationExecuteTool),
		attribute.String(KeyGenAIToolName, "(merged tools)"),
		attribute.String(KeyGenAIToolDescription, "(merged tools)"),
		attribute.String(KeyToolCallArguments, "N/A"),
	)
	if rspEvent == nil {
		return
	}
	span.SetAttributes(attribute.String(KeyEventID, rspEvent.ID))
	if rspEvent.Response != nil {
		span.SetAttributes(attribute.String(KeyToolCallID, rspEvent.Response.ID))
		if bts, err := json.Marshal(rspEvent.Response); err == nil {
			span.SetAttributes(attribute.String(KeyToolCallResult, string(bts)))
		} else {
			span.SetAttributes(attribute.String(KeyToolCallResult, "<not json serializable>"))
		}
	}

	span.SetAttributes(
		attribute.String(KeyLLMRequest, "{}"),
		attribute.String(KeyLLMResponse, "{}"),
	)
}

// TraceChat annotates a span with the model request and response of one
// model call.
func TraceChat(span trace.Span, invocation *agent.Invocation, req *model.Request, rsp *model.Response, eventID string) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemName),
		attribute.String(KeyGenAIOperationName, OperationChat),
		attribute.String(KeyEventID, eventID),
	)
	if invocation != nil {
		span.SetAttributes(attribute.String(KeyInvocationID, invocation.InvocationID))
		if invocation.Session != nil {
			span.SetAttributes(attribute.String(KeySessionID, invocation.Session.ID))
		}
		if invocation.Model != nil {
			span.SetAttributes(attribute.String(KeyGenAIRequestModel, invocation.Model.Info().Name))
		}
	}

	if bts, err := json.Marshal(req); err == nil {
		span.SetAttributes(attribute.String(KeyLLMRequest, string(bts)))
	} else {
		span.SetAttributes(attribute.String(KeyLLMRequest, "<not json serializable>"))
	}
	if bts, err := json.Marshal(rsp); err == nil {
		span.SetAttributes(attribute.String(KeyLLMResponse, string(bts)))
	} else {
		span.SetAttributes(attribute.String(KeyLLMResponse, "<not json serializable>"))
	}
}

// NewGRPCConn creates a gRPC connection to an OpenTelemetry collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
