//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// stubTool implements tool.Tool for conversion tests.
type stubTool struct{ decl *tool.Declaration }

func (s stubTool) Call(_ context.Context, _ []byte) (any, error) { return nil, nil }
func (s stubTool) Declaration() *tool.Declaration                { return s.decl }

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	m, err := New(
		context.Background(),
		"gemini-2.0-flash",
		WithAPIKey("test-key"),
		WithClientOptions(&genai.ClientConfig{
			APIKey:      "test-key",
			HTTPOptions: genai.HTTPOptions{BaseURL: server.URL},
		}),
	)
	require.NoError(t, err)
	return m
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

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv(GoogleAPIKeyEnv, "")
	_, err := New(context.Background(), "gemini-2.0-flash")
	require.Error(t, err)

	m, err := New(context.Background(), "gemini-2.0-flash", WithAPIKey("test-key"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", m.Info().Name)
}

func TestGenerateContentNilRequest(t *testing.T) {
	m, err := New(context.Background(), "gemini-2.0-flash", WithAPIKey("test-key"))
	require.NoError(t, err)
	_, err = m.GenerateContent(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "request cannot be nil", err.Error())
}

func TestBuildConfig(t *testing.T) {
	m, err := New(context.Background(), "gemini-2.0-flash", WithAPIKey("test-key"))
	require.NoError(t, err)

	temperature := 0.5
	maxTokens := 512
	config := m.buildConfig(&model.Request{
		Contents: []model.Content{
			model.NewSystemContent("be concise"),
			model.NewUserContent(model.NewTextPart("hello")),
		},
		GenerationConfig: model.GenerationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: &maxTokens,
			Stop:            []string{"END"},
			ResponseSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"answer": map[string]any{"type": "string"},
				},
			},
		},
		Tools: map[string]tool.Tool{
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
		},
	})

	require.NotNil(t, config.Temperature)
	assert.Equal(t, float32(0.5), *config.Temperature)
	assert.Equal(t, int32(512), config.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, config.StopSequences)

	require.NotNil(t, config.SystemInstruction)
	require.Len(t, config.SystemInstruction.Parts, 1)
	assert.Equal(t, "be concise", config.SystemInstruction.Parts[0].Text)

	assert.Equal(t, "application/json", config.ResponseMIMEType)
	require.NotNil(t, config.ResponseSchema)
	assert.Equal(t, genai.TypeObject, config.ResponseSchema.Type)
	assert.Equal(t, genai.TypeString, config.ResponseSchema.Properties["answer"].Type)

	require.Len(t, config.Tools, 1)
	require.Len(t, config.Tools[0].FunctionDeclarations, 1)
	declaration := config.Tools[0].FunctionDeclarations[0]
	assert.Equal(t, "get_weather", declaration.Name)
	require.NotNil(t, declaration.Parameters)
	assert.Equal(t, genai.TypeObject, declaration.Parameters.Type)
	assert.Equal(t, genai.TypeString, declaration.Parameters.Properties["city"].Type)
	assert.Equal(t, []string{"city"}, declaration.Parameters.Required)
}

func TestConvertContents(t *testing.T) {
	contents := convertContents([]model.Content{
		model.NewSystemContent("lifted out"),
		model.NewUserContent(model.NewTextPart("what is the weather?")),
		model.NewModelContent(
			model.NewFunctionCallPart("call-1", "get_weather", []byte(`{"city":"SF"}`)),
		),
		{Role: model.RoleTool, Parts: []model.Part{
			model.NewFunctionResponsePart("call-1", "get_weather", []byte(`{"temp":18}`)),
		}},
	})
	require.Len(t, contents, 3)

	assert.EqualValues(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "what is the weather?", contents[0].Parts[0].Text)

	assert.EqualValues(t, genai.RoleModel, contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "get_weather", contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, map[string]any{"city": "SF"}, contents[1].Parts[0].FunctionCall.Args)

	// Tool results ride in a user turn.
	assert.EqualValues(t, genai.RoleUser, contents[2].Role)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, map[string]any{"temp": float64(18)}, contents[2].Parts[0].FunctionResponse.Response)
}

func TestDecodeResponse(t *testing.T) {
	assert.Equal(t, map[string]any{"temp": float64(18)}, decodeResponse([]byte(`{"temp":18}`)))
	assert.Equal(t, map[string]any{"result": `"sunny"`}, decodeResponse([]byte(`"sunny"`)))
	assert.Equal(t, map[string]any{}, decodeResponse(nil))
}

func TestConvertFinishReason(t *testing.T) {
	assert.Equal(t, "tool_calls", convertFinishReason(genai.FinishReasonStop, true))
	assert.Equal(t, "stop", convertFinishReason(genai.FinishReasonStop, false))
	assert.Equal(t, "length", convertFinishReason(genai.FinishReasonMaxTokens, false))
	assert.Equal(t, "", convertFinishReason("", false))
	assert.Equal(t, "safety", convertFinishReason("SAFETY", false))
}

func TestGenerateContentNonStreaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [
				{"content": {"role": "model", "parts": [{"text": "Hello from Gemini"}]}, "finishReason": "STOP", "index": 0}
			],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 3, "totalTokenCount": 7},
			"modelVersion": "gemini-2.0-flash"
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
	assert.Equal(t, "Hello from Gemini", rsp.Content.Text())
	assert.Equal(t, "stop", rsp.FinishReason)
	assert.True(t, rsp.TurnComplete)
	require.NotNil(t, rsp.Usage)
	assert.Equal(t, 7, rsp.Usage.TotalTokens)
}

func TestGenerateContentFunctionCall(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [
				{"content": {"role": "model", "parts": [
					{"functionCall": {"name": "get_weather", "args": {"city": "SF"}}}
				]}, "finishReason": "STOP", "index": 0}
			]
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
	// The API omits call IDs, so one is synthesized.
	assert.Equal(t, "auto_call_0", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.JSONEq(t, `{"city":"SF"}`, string(calls[0].Arguments))
	assert.Equal(t, "tool_calls", rsp.FinishReason)
	assert.False(t, rsp.TurnComplete)
	assert.True(t, rsp.IsToolCallResponse())
}

func TestGenerateContentStreaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]},"index":0}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP","index":0}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`,
		}
		for _, chunk := range chunks {
			w.Write([]byte("data: " + chunk + "\n\n"))
		}
	})

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents:         []model.Content{model.NewUserContent(model.NewTextPart("hi"))},
		GenerationConfig: model.GenerationConfig{Stream: true},
	})
	require.NoError(t, err)

	responses := collectResponses(t, ch)
	require.GreaterOrEqual(t, len(responses), 3)

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
	assert.Equal(t, 6, final.Usage.TotalTokens)
}

func TestGenerateContentAPIError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`))
	})

	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Contents: []model.Content{model.NewUserContent(model.NewTextPart("hi"))},
	})
	require.NoError(t, err)

	responses := collectResponses(t, ch)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, model.ErrorTypeAPIError, responses[0].Error.Type)
	assert.Contains(t, responses[0].Error.Message, "API key not valid")
}
