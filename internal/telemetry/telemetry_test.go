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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// recordingSpan forwards to a noop span while keeping every attribute for
// inspection.
type recordingSpan struct {
	trace.Span
	attrs map[attribute.Key]attribute.Value
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, attr := range kv {
		s.attrs[attr.Key] = attr.Value
	}
}

func newRecordingSpan() *recordingSpan {
	_, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "test")
	return &recordingSpan{Span: span, attrs: make(map[attribute.Key]attribute.Value)}
}

type dummyModel struct{}

func (dummyModel) GenerateContent(_ context.Context, _ *model.Request) (<-chan *model.Response, error) {
	ch := make(chan *model.Response)
	close(ch)
	return ch, nil
}

func (dummyModel) Info() model.Info { return model.Info{Name: "dummy"} }

func TestSpanNameHelpers(t *testing.T) {
	assert.Equal(t, "chat gpt-4o", NewChatSpanName("gpt-4o"))
	assert.Equal(t, "chat", NewChatSpanName(""))
	assert.Equal(t, "execute_tool read_file", NewExecuteToolSpanName("read_file"))
}

func TestTraceToolCall(t *testing.T) {
	span := newRecordingSpan()
	declaration := &tool.Declaration{Name: "read_file", Description: "Reads a file"}
	rsp := &model.FunctionResponse{
		ID:       "call-1",
		Name:     "read_file",
		Response: []byte(`{"content":"hello"}`),
	}

	TraceToolCall(span, declaration, []byte(`{"path":"a.txt"}`), rsp)

	assert.Equal(t, "read_file", span.attrs["gen_ai.tool.name"].AsString())
	assert.Equal(t, `{"path":"a.txt"}`, span.attrs["trpc.go.adk.tool_call_args"].AsString())
	assert.Equal(t, "call-1", span.attrs["trpc.go.adk.tool_id"].AsString())
	assert.Equal(t, `{"content":"hello"}`, span.attrs["trpc.go.adk.tool_response"].AsString())
	assert.Equal(t, "{}", span.attrs[attribute.Key(KeyLLMRequest)].AsString())
}

func TestTraceToolCallNilResponse(t *testing.T) {
	span := newRecordingSpan()
	TraceToolCall(span, &tool.Declaration{Name: "noop"}, nil, nil)
	assert.Equal(t, "noop", span.attrs["gen_ai.tool.name"].AsString())
	_, hasToolID := span.attrs["trpc.go.adk.tool_id"]
	assert.False(t, hasToolID)
}

func TestTraceMergedToolCalls(t *testing.T) {
	span := newRecordingSpan()
	rspEvent := event.NewResponseEvent("inv-1", "assistant", &model.Response{ID: "rsp-2"})

	TraceMergedToolCalls(span, rspEvent)

	assert.Equal(t, "(merged tools)", span.attrs["gen_ai.tool.name"].AsString())
	assert.Equal(t, "rsp-2", span.attrs["trpc.go.adk.tool_id"].AsString())
}

func TestTraceChat(t *testing.T) {
	span := newRecordingSpan()
	invocation := &agent.Invocation{
		InvocationID: "inv-1",
		Session:      &session.Session{ID: "sess-1"},
		Model:        dummyModel{},
	}

	TraceChat(span, invocation, &model.Request{}, &model.Response{}, "evt-1")

	assert.Equal(t, "inv-1", span.attrs[attribute.Key(KeyInvocationID)].AsString())
	assert.Equal(t, "sess-1", span.attrs[attribute.Key(KeySessionID)].AsString())
	assert.Equal(t, "evt-1", span.attrs[attribute.Key(KeyEventID)].AsString())
	assert.Equal(t, "dummy", span.attrs["gen_ai.request.model"].AsString())
	assert.NotEmpty(t, span.attrs[attribute.Key(KeyLLMRequest)].AsString())
}

func TestNewGRPCConn(t *testing.T) {
	// gRPC connects lazily, so construction succeeds without a collector.
	conn, err := NewGRPCConn("localhost:4317")
	require.NoError(t, err)
	require.NotNil(t, conn)
	_ = conn.Close()
}
