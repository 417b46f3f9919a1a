//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openaigo "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// stubTool implements tool.Tool for conversion tests.
type stubTool struct{ decl *tool.Declaration }

func (s stubTool) Call(_ context.Context, _ []byte) (any, error) { return nil, nil }
func (s stubTool) Declaration() *tool.Declaration                { return s.decl }

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Model) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	m := New("gpt-4o-mini", WithAPIKey("test-key"), WithBaseURL(server.URL))
	return server, m
}

func collectResponses(t *testing.T, ch <-chan *model.Response) []*model.Response {
	t.Helper()
	var responses []*model.Response
	for rsp := range ch {
		responses = append(responses, rsp)
	}
	require.NotEmpty(t, responses)
	return responses
}

func TestNewAppliesOptions(t *testing.T) {
	m := New("gpt-4o", WithAPIKey("key"), WithBaseURL("https://example.com/v1"), WithChannelBufferSize(8))
	assert.Equal(t, "gpt-4o", m.Info().Name)
	assert.Equal(t, 8, m.channelBufferSize)

	m = New("gpt-4o", WithChannelBufferSize(-1))
	assert.Equal(t, defaultChannelBufferSize, m.channelBufferSize)
}

func TestGenerateContentNilRequest(t *testing.T) {
	m := New("gpt-4o-mini", WithAPIKey("test-key"))
	_, err := m.GenerateContent(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "request cannot be nil", err.Error())
}

func TestConvertContents(t *testing.T) {
	m := New("gpt-4o-mini")

	contents := []model.Content{
		model.NewSystemContent("be helpful"),
		model.NewUserContent(model.NewTextPart("what is the weather?")),
		model.NewModelContent(
			model.NewTextPart("checking"),
			model.NewFunctionCallPart("call-1", "get_weather", []byte(`{"city":"SF"}`)),
		),
		{Role: model.RoleTool, Parts: []model.Part{
			model.NewFunctionResponsePart("call-1", "get_weather", []byte(`{"temp":18}`)),
			model.NewFunctionResponsePart("call-2", "get_time", []byte(`{"time":"noon"}`)),
		}},
		model.NewTextContent("narrator", "unknown roles become user"),
	}

	converted := m.convertContents(contents)
	// The tool content expands into one message per function response.
	require.Len(t, converted, 6)

	assert.NotNil(t, converted[0].OfSystem)
	assert.NotNil(t, converted[1].OfUser)
	assert.NotNil(t, converted[2].OfAssistant)
	assert.NotNil(t, converted[3].OfTool)
	assert.NotNil(t, converted[4].OfTool)
	assert.NotNil(t, converted[5].OfUser)

	require.Len(t, converted[2].GetToolCalls(), 1)
	assert.Equal(t, "call-1", converted[3].OfTool.ToolCallID)
	assert.Equal(t, "call-2", converted[4].OfTool.ToolCallID)
}

func TestConvertUserContentWithInlineData(t *testing.T) {
	m := New("gpt-4o-mini")

	content := model.NewUserContent(
		model.NewTextPart("describe this"),
		model.NewInlineDataPart("image/png", []byte{0x89, 0x50}),
	)
	converted := m.convertUserContent(content)
	require.NotNil(t, converted.OfUser)
	parts := converted.OfUser.Content.OfArrayOfContentParts
	require.Len(t, parts, 2)
	assert.NotNil(t, parts[0].OfText)
	require.NotNil(t, parts[1].OfImageURL)
	assert.True(t, strings.HasPrefix(parts[1].OfImageURL.ImageURL.URL, "data:image/png;base64,"))
}

func TestConvertTools(t *testing.T) {
	m := New("gpt-4o-mini")

	tools := map[string]tool.Tool{
		"get_weather": stubTool{decl: &tool.Declaration{
			Name:        "get_weather",
			Description: "Looks up the weather",
			InputSchema: &tool.Schema{
				Type: "object",
				Properties: map[string]*tool.Schema{
					"city": {Type: "string"},
				},
				Required: []string{"city"},
			},
		}},
	}

	params := m.convertTools(tools)
	require.Len(t, params, 1)
	fn := params[0].Function
	assert.Equal(t, "get_weather", fn.Name)
	assert.Equal(t, "Looks up the weather", fn.Description.Value)
	assert.NotEmpty(t, fn.Parameters)
}

func TestGenerateContentNonStreaming(t *testing.T) {
	var gotPath string
	_, m := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
		}`))
	})

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents: []model.Content{model.NewUserContent(model.NewTextPart("hi"))},
	})
	require.NoError(t, err)

	responses := collectResponses(t, ch)
	require.Len(t, responses, 1)
	rsp := responses[0]
	require.Nil(t, rsp.Error)
	assert.True(t, strings.HasSuffix(gotPath, "/chat/completions"))
	assert.Equal(t, "Hello there", rsp.Content.Text())
	assert.Equal(t, "stop", rsp.FinishReason)
	assert.True(t, rsp.TurnComplete)
	require.NotNil(t, rsp.Usage)
	assert.Equal(t, 12, rsp.Usage.TotalTokens)
}

func TestGenerateContentToolCalls(t *testing.T) {
	_, m := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-456",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "tool_calls": [
				{"id": "call_abc", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"SF\"}"}}
			]}, "finish_reason": "tool_calls"}]
		}`))
	})

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents: []model.Content{model.NewUserContent(model.NewTextPart("weather in SF?"))},
	})
	require.NoError(t, err)

	responses := collectResponses(t, ch)
	require.Len(t, responses, 1)
	rsp := responses[0]
	require.Nil(t, rsp.Error)
	calls := rsp.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_abc", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.JSONEq(t, `{"city":"SF"}`, string(calls[0].Arguments))
	assert.False(t, rsp.TurnComplete)
	assert.True(t, rsp.IsToolCallResponse())
}

func TestGenerateContentStreaming(t *testing.T) {
	_, m := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		}
		for _, chunk := range chunks {
			w.Write([]byte("data: " + chunk + "\n\n"))
		}
		w.Write([]byte("data: [DONE]\n\n"))
	})

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents:         []model.Content{model.NewUserContent(model.NewTextPart("hi"))},
		GenerationConfig: model.GenerationConfig{Stream: true},
	})
	require.NoError(t, err)

	responses := collectResponses(t, ch)

	var deltas []string
	for _, rsp := range responses[:len(responses)-1] {
		assert.True(t, rsp.Partial)
		if rsp.Content != nil {
			deltas = append(deltas, rsp.Content.Text())
		}
	}
	assert.Equal(t, []string{"Hel", "lo"}, deltas)

	final := responses[len(responses)-1]
	require.Nil(t, final.Error)
	assert.False(t, final.Partial)
	assert.True(t, final.TurnComplete)
	assert.Equal(t, "Hello", final.Content.Text())
	assert.Equal(t, "stop", final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 7, final.Usage.TotalTokens)
}

func TestGenerateContentStreamingToolCalls(t *testing.T) {
	_, m := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_xyz","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
			`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":\"SF\"}"}}]}}]}`,
			`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, chunk := range chunks {
			w.Write([]byte("data: " + chunk + "\n\n"))
		}
		w.Write([]byte("data: [DONE]\n\n"))
	})

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents:         []model.Content{model.NewUserContent(model.NewTextPart("weather?"))},
		GenerationConfig: model.GenerationConfig{Stream: true},
	})
	require.NoError(t, err)

	responses := collectResponses(t, ch)
	final := responses[len(responses)-1]
	require.Nil(t, final.Error)
	assert.False(t, final.TurnComplete)
	calls := final.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_xyz", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.JSONEq(t, `{"city":"SF"}`, string(calls[0].Arguments))
}

func TestGenerateContentAPIError(t *testing.T) {
	_, m := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "model not found", "type": "invalid_request_error"}}`))
	})

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents: []model.Content{model.NewUserContent(model.NewTextPart("hi"))},
	})
	require.NoError(t, err)

	responses := collectResponses(t, ch)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, model.ErrorTypeAPIError, responses[0].Error.Type)
	assert.Contains(t, responses[0].Error.Message, "model not found")
}

func TestChatCallbacksInvoked(t *testing.T) {
	var requestSeen, responseSeen bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-789",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	m := New("gpt-4o-mini",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithChatRequestCallback(func(ctx context.Context, req *openaigo.ChatCompletionNewParams) {
			requestSeen = true
		}),
		WithChatResponseCallback(func(ctx context.Context, req *openaigo.ChatCompletionNewParams, rsp *openaigo.ChatCompletion) {
			responseSeen = rsp != nil
		}),
	)

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents: []model.Content{model.NewUserContent(model.NewTextPart("hi"))},
	})
	require.NoError(t, err)
	collectResponses(t, ch)
	assert.True(t, requestSeen)
	assert.True(t, responseSeen)
}
