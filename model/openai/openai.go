//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides OpenAI-compatible model implementations.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const (
	// defaultChannelBufferSize is the default response channel buffer size.
	defaultChannelBufferSize = 256
)

// ChatRequestCallbackFunc is called before a chat request is sent.
type ChatRequestCallbackFunc func(
	ctx context.Context,
	chatRequest *openai.ChatCompletionNewParams,
)

// ChatResponseCallbackFunc is called after a non-streaming chat response.
type ChatResponseCallbackFunc func(
	ctx context.Context,
	chatRequest *openai.ChatCompletionNewParams,
	chatResponse *openai.ChatCompletion,
)

// ChatChunkCallbackFunc is called for each streaming chunk.
type ChatChunkCallbackFunc func(
	ctx context.Context,
	chatRequest *openai.ChatCompletionNewParams,
	chatChunk *openai.ChatCompletionChunk,
)

// ChatStreamCompleteCallbackFunc is called once streaming finishes, with the
// accumulator on success or the stream error on failure.
type ChatStreamCompleteCallbackFunc func(
	ctx context.Context,
	chatRequest *openai.ChatCompletionNewParams,
	accumulator *openai.ChatCompletionAccumulator,
	streamErr error,
)

// options contains configuration options for creating a Model.
type options struct {
	apiKey                     string
	baseURL                    string
	channelBufferSize          int
	chatRequestCallback        ChatRequestCallbackFunc
	chatResponseCallback       ChatResponseCallbackFunc
	chatChunkCallback          ChatChunkCallbackFunc
	chatStreamCompleteCallback ChatStreamCompleteCallbackFunc
	openaiOptions              []openaiopt.RequestOption
	extraFields                map[string]any
}

// Option configures an OpenAI model.
type Option func(*options)

// WithAPIKey sets the API key. When unset the client falls back to the
// OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(opts *options) {
		opts.apiKey = key
	}
}

// WithBaseURL sets the base URL, for OpenAI-compatible endpoints.
func WithBaseURL(url string) Option {
	return func(opts *options) {
		opts.baseURL = url
	}
}

// WithChannelBufferSize sets the response channel buffer size.
func WithChannelBufferSize(size int) Option {
	return func(opts *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		opts.channelBufferSize = size
	}
}

// WithChatRequestCallback sets the function called before each chat request.
func WithChatRequestCallback(fn ChatRequestCallbackFunc) Option {
	return func(opts *options) {
		opts.chatRequestCallback = fn
	}
}

// WithChatResponseCallback sets the function called after each non-streaming
// chat response.
func WithChatResponseCallback(fn ChatResponseCallbackFunc) Option {
	return func(opts *options) {
		opts.chatResponseCallback = fn
	}
}

// WithChatChunkCallback sets the function called for each streaming chunk.
func WithChatChunkCallback(fn ChatChunkCallbackFunc) Option {
	return func(opts *options) {
		opts.chatChunkCallback = fn
	}
}

// WithChatStreamCompleteCallback sets the function called when streaming
// finishes, on both success and failure.
func WithChatStreamCompleteCallback(fn ChatStreamCompleteCallbackFunc) Option {
	return func(opts *options) {
		opts.chatStreamCompleteCallback = fn
	}
}

// WithOpenAIOptions appends request options passed to the openai-go client.
// E.g. use its middleware option:
//
//	WithOpenAIOptions(openaiopt.WithMiddleware(
//		func(req *http.Request, next openaiopt.MiddlewareNext) (*http.Response, error) {
//			// do something
//			return next(req)
//		},
//	))
func WithOpenAIOptions(openaiOpts ...openaiopt.RequestOption) Option {
	return func(opts *options) {
		opts.openaiOptions = append(opts.openaiOptions, openaiOpts...)
	}
}

// WithExtraFields sets extra fields added to every chat request body.
func WithExtraFields(extraFields map[string]any) Option {
	return func(opts *options) {
		if opts.extraFields == nil {
			opts.extraFields = make(map[string]any)
		}
		for k, v := range extraFields {
			opts.extraFields[k] = v
		}
	}
}

// Model implements the model.Model interface for the OpenAI API and
// OpenAI-compatible endpoints.
type Model struct {
	client                     openai.Client
	name                       string
	channelBufferSize          int
	chatRequestCallback        ChatRequestCallbackFunc
	chatResponseCallback       ChatResponseCallbackFunc
	chatChunkCallback          ChatChunkCallbackFunc
	chatStreamCompleteCallback ChatStreamCompleteCallbackFunc
	extraFields                map[string]any
}

// New creates a new OpenAI-like model.
func New(name string, opts ...Option) *Model {
	o := &options{
		channelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.openaiOptions...)

	return &Model{
		client:                     openai.NewClient(clientOpts...),
		name:                       name,
		channelBufferSize:          o.channelBufferSize,
		chatRequestCallback:        o.chatRequestCallback,
		chatResponseCallback:       o.chatResponseCallback,
		chatChunkCallback:          o.chatChunkCallback,
		chatStreamCompleteCallback: o.chatStreamCompleteCallback,
		extraFields:                o.extraFields,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{
		Name: m.name,
	}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)

	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: m.convertContents(request.Contents),
		Tools:    m.convertTools(request.Tools),
	}

	// MaxTokens is deprecated and not compatible with o-series models.
	// Use MaxCompletionTokens instead.
	if request.MaxOutputTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxOutputTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		// Use the first stop string for simplicity.
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(request.Stop[0]),
		}
	}
	if request.ResponseSchema != nil {
		chatRequest.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: request.ResponseSchema,
				},
			},
		}
	}

	var opts []openaiopt.RequestOption
	for key, value := range m.extraFields {
		opts = append(opts, openaiopt.WithJSONSet(key, value))
	}

	if request.Stream {
		chatRequest.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	go func() {
		defer close(responseChan)

		if m.chatRequestCallback != nil {
			m.chatRequestCallback(ctx, &chatRequest)
		}

		if request.Stream {
			m.handleStreamingResponse(ctx, chatRequest, responseChan, opts...)
		} else {
			m.handleNonStreamingResponse(ctx, chatRequest, responseChan, opts...)
		}
	}()

	return responseChan, nil
}

// convertContents converts conversation contents to OpenAI message params.
// A tool content expands into one tool message per function response so each
// result pairs with its tool_call_id.
func (m *Model) convertContents(contents []model.Content) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion
	for _, content := range contents {
		switch content.Role {
		case model.RoleSystem:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(content.Text()),
					},
				},
			})
		case model.RoleModel:
			result = append(result, m.convertAssistantContent(content))
		case model.RoleTool:
			for _, part := range content.Parts {
				fr := part.FunctionResponse
				if fr == nil {
					continue
				}
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfTool: &openai.ChatCompletionToolMessageParam{
						Content: openai.ChatCompletionToolMessageParamContentUnion{
							OfString: openai.String(string(fr.Response)),
						},
						ToolCallID: fr.ID,
					},
				})
			}
		default: // User content, and unknown roles degrade to user.
			result = append(result, m.convertUserContent(content))
		}
	}
	return result
}

func (m *Model) convertAssistantContent(content model.Content) openai.ChatCompletionMessageParamUnion {
	assistant := &openai.ChatCompletionAssistantMessageParam{}
	if text := content.Text(); text != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}
	for _, call := range content.FunctionCalls() {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}
}

func (m *Model) convertUserContent(content model.Content) openai.ChatCompletionMessageParamUnion {
	if len(content.Parts) == 1 && content.Parts[0].IsText() {
		return openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(content.Parts[0].Text),
				},
			},
		}
	}
	var contentParts []openai.ChatCompletionContentPartUnionParam
	for _, part := range content.Parts {
		switch {
		case part.IsText():
			contentParts = append(contentParts, openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: part.Text},
			})
		case part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/"):
			contentParts = append(contentParts, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL: blobToDataURL(part.InlineData),
					},
				},
			})
		case part.InlineData != nil:
			contentParts = append(contentParts, openai.ChatCompletionContentPartUnionParam{
				OfFile: &openai.ChatCompletionContentPartFileParam{
					File: openai.ChatCompletionContentPartFileFileParam{
						FileData: openai.String(blobToDataURL(part.InlineData)),
					},
				},
			})
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: contentParts,
			},
		},
	}
}

func blobToDataURL(blob *model.Blob) string {
	return "data:" + blob.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(blob.Data)
}

func (m *Model) convertTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range tools {
		declaration := t.Declaration()
		// Round-trip the schema through JSON to map onto OpenAI's parameter format.
		schemaBytes, err := json.Marshal(declaration.InputSchema)
		if err != nil {
			log.Errorf("failed to marshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("failed to unmarshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

// handleStreamingResponse handles streaming chat completion responses.
func (m *Model) handleStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
	opts ...openaiopt.RequestOption,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest, opts...)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()

		// Always accumulate so tool call deltas assemble correctly; partial
		// emission is suppressed for chunks with no visible delta.
		acc.AddChunk(chunk)

		if m.shouldSuppressChunk(chunk) {
			continue
		}

		if m.chatChunkCallback != nil {
			m.chatChunkCallback(ctx, &chatRequest, &chunk)
		}

		response := m.createPartialResponse(chunk)

		select {
		case responseChan <- response:
		case <-ctx.Done():
			return
		}
	}

	m.sendFinalResponse(ctx, stream, acc, responseChan)

	if m.chatStreamCompleteCallback != nil {
		var callbackAcc *openai.ChatCompletionAccumulator
		if stream.Err() == nil {
			callbackAcc = &acc
		}
		m.chatStreamCompleteCallback(ctx, &chatRequest, callbackAcc, stream.Err())
	}
}

// shouldSuppressChunk reports whether the chunk carries no visible delta.
// Tool call deltas are suppressed; they surface only in the final aggregated
// response.
func (m *Model) shouldSuppressChunk(chunk openai.ChatCompletionChunk) bool {
	if len(chunk.Choices) == 0 {
		return true
	}
	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		return false
	}
	if choice.Delta.JSON.ToolCalls.Valid() {
		return true
	}
	return choice.FinishReason == ""
}

// createPartialResponse creates a partial response from a chunk.
func (m *Model) createPartialResponse(chunk openai.ChatCompletionChunk) *model.Response {
	response := &model.Response{
		ID: chunk.ID,
		// Upstream may emit an empty object for tool call deltas.
		Object: func() string {
			if chunk.Object != "" {
				return string(chunk.Object)
			}
			return model.ObjectTypeChatCompletionChunk
		}(),
		Created:   chunk.Created,
		Model:     chunk.Model,
		Timestamp: time.Now(),
		Partial:   true,
	}
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content := model.NewModelContent(model.NewTextPart(choice.Delta.Content))
			response.Content = &content
		}
	}
	return response
}

// sendFinalResponse sends the final aggregated response, or an error response
// when the stream failed.
func (m *Model) sendFinalResponse(
	ctx context.Context,
	stream *ssestream.Stream[openai.ChatCompletionChunk],
	acc openai.ChatCompletionAccumulator,
	responseChan chan<- *model.Response,
) {
	if err := stream.Err(); err != nil {
		errorResponse := &model.Response{
			Object: model.ObjectTypeError,
			Error: &model.ResponseError{
				Message: err.Error(),
				Type:    model.ErrorTypeStreamError,
			},
			Timestamp:    time.Now(),
			TurnComplete: true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	var parts []model.Part
	var finishReason string
	hasToolCall := false
	if len(acc.Choices) > 0 {
		choice := acc.Choices[0]
		if choice.Message.Content != "" {
			parts = append(parts, model.NewTextPart(choice.Message.Content))
		}
		for i, toolCall := range choice.Message.ToolCalls {
			// Providers that start tool call indices above zero leave empty
			// placeholder entries in the accumulator.
			if toolCall.Function.Name == "" && toolCall.ID == "" {
				continue
			}
			hasToolCall = true
			parts = append(parts, model.NewFunctionCallPart(
				synthesizeCallID(toolCall.ID, i),
				toolCall.Function.Name,
				[]byte(toolCall.Function.Arguments),
			))
		}
		finishReason = choice.FinishReason
	}

	finalResponse := &model.Response{
		ID:      acc.ID,
		Object:  model.ObjectTypeChatCompletion,
		Created: acc.Created,
		Model:   acc.Model,
		Usage: &model.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		},
		FinishReason: finishReason,
		Timestamp:    time.Now(),
		TurnComplete: !hasToolCall,
	}
	if len(parts) > 0 {
		content := model.NewModelContent(parts...)
		finalResponse.Content = &content
	}

	select {
	case responseChan <- finalResponse:
	case <-ctx.Done():
	}
}

// synthesizeCallID returns the provider ID, or a stable index-derived one for
// providers that omit it.
func synthesizeCallID(id string, index int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("auto_call_%d", index)
}

// handleNonStreamingResponse handles non-streaming chat completion responses.
func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
	opts ...openaiopt.RequestOption,
) {
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest, opts...)
	if m.chatResponseCallback != nil {
		m.chatResponseCallback(ctx, &chatRequest, chatCompletion)
	}
	if err != nil {
		errorResponse := &model.Response{
			Object: model.ObjectTypeError,
			Error: &model.ResponseError{
				Message: err.Error(),
				Type:    model.ErrorTypeAPIError,
			},
			Timestamp:    time.Now(),
			TurnComplete: true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	response := &model.Response{
		ID:           chatCompletion.ID,
		Object:       string(chatCompletion.Object),
		Created:      chatCompletion.Created,
		Model:        chatCompletion.Model,
		Timestamp:    time.Now(),
		TurnComplete: true,
	}

	if len(chatCompletion.Choices) > 0 {
		choice := chatCompletion.Choices[0]
		var parts []model.Part
		if choice.Message.Content != "" {
			parts = append(parts, model.NewTextPart(choice.Message.Content))
		}
		for i, toolCall := range choice.Message.ToolCalls {
			parts = append(parts, model.NewFunctionCallPart(
				synthesizeCallID(toolCall.ID, i),
				toolCall.Function.Name,
				[]byte(toolCall.Function.Arguments),
			))
		}
		if len(choice.Message.ToolCalls) > 0 {
			response.TurnComplete = false
		}
		if len(parts) > 0 {
			content := model.NewModelContent(parts...)
			response.Content = &content
		}
		response.FinishReason = choice.FinishReason
	}

	if chatCompletion.Usage.PromptTokens > 0 || chatCompletion.Usage.CompletionTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(chatCompletion.Usage.PromptTokens),
			CompletionTokens: int(chatCompletion.Usage.CompletionTokens),
			TotalTokens:      int(chatCompletion.Usage.TotalTokens),
		}
	}

	select {
	case responseChan <- response:
	case <-ctx.Done():
	}
}
