//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package anthropic provides a model implementation backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const (
	// defaultChannelBufferSize is the default response channel buffer size.
	defaultChannelBufferSize = 256

	// defaultMaxTokens is used when the request does not set an output limit.
	// The Messages API requires max_tokens on every request.
	defaultMaxTokens = 4096
)

type options struct {
	apiKey            string
	baseURL           string
	channelBufferSize int
	maxTokens         int64
	anthropicOptions  []anthropicopt.RequestOption
}

// Option configures the Anthropic model.
type Option func(*options)

// WithAPIKey sets the API key. When unset the client falls back to the
// ANTHROPIC_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL sets a custom API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithChannelBufferSize sets the response channel buffer size.
// Values less than or equal to zero fall back to the default.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		o.channelBufferSize = size
	}
}

// WithMaxTokens sets the default max_tokens sent when a request does not
// specify an output token limit.
func WithMaxTokens(maxTokens int64) Option {
	return func(o *options) {
		if maxTokens > 0 {
			o.maxTokens = maxTokens
		}
	}
}

// WithAnthropicOptions passes extra request options to the underlying client.
func WithAnthropicOptions(opts ...anthropicopt.RequestOption) Option {
	return func(o *options) {
		o.anthropicOptions = append(o.anthropicOptions, opts...)
	}
}

// Model implements model.Model using the Anthropic Messages API.
type Model struct {
	client            anthropicsdk.Client
	name              string
	channelBufferSize int
	maxTokens         int64
}

var _ model.Model = (*Model)(nil)

// New creates an Anthropic model with the given name, for example
// "claude-sonnet-4-0".
func New(name string, opts ...Option) *Model {
	o := &options{
		channelBufferSize: defaultChannelBufferSize,
		maxTokens:         defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}

	var clientOpts []anthropicopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, anthropicopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, anthropicopt.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.anthropicOptions...)

	return &Model{
		client:            anthropicsdk.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.channelBufferSize,
		maxTokens:         o.maxTokens,
	}
}

// Info returns basic information about the model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent sends the request to the Messages API and streams
// responses on the returned channel.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	params := m.buildRequest(request)
	responseChan := make(chan *model.Response, m.channelBufferSize)

	go func() {
		defer close(responseChan)
		if request.GenerationConfig.Stream {
			m.handleStreamingResponse(ctx, params, responseChan)
		} else {
			m.handleNonStreamingResponse(ctx, params, responseChan)
		}
	}()

	return responseChan, nil
}

func (m *Model) buildRequest(request *model.Request) anthropicsdk.MessageNewParams {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(m.name),
		MaxTokens: m.maxTokens,
		Messages:  m.convertContents(request.Contents),
	}
	if request.GenerationConfig.MaxOutputTokens != nil {
		params.MaxTokens = int64(*request.GenerationConfig.MaxOutputTokens)
	}
	if request.GenerationConfig.Temperature != nil {
		params.Temperature = anthropicsdk.Float(*request.GenerationConfig.Temperature)
	}
	if request.GenerationConfig.TopP != nil {
		params.TopP = anthropicsdk.Float(*request.GenerationConfig.TopP)
	}
	if request.GenerationConfig.TopK != nil {
		params.TopK = anthropicsdk.Int(int64(*request.GenerationConfig.TopK))
	}
	if len(request.GenerationConfig.Stop) > 0 {
		params.StopSequences = request.GenerationConfig.Stop
	}
	if system := extractSystemBlocks(request.Contents); len(system) > 0 {
		params.System = system
	}
	if len(request.Tools) > 0 {
		params.Tools = m.convertTools(request.Tools)
	}
	return params
}

// extractSystemBlocks collects system contents, which the Messages API
// takes as a top level field instead of a message.
func extractSystemBlocks(contents []model.Content) []anthropicsdk.TextBlockParam {
	var blocks []anthropicsdk.TextBlockParam
	for _, content := range contents {
		if content.Role != model.RoleSystem {
			continue
		}
		if text := content.Text(); text != "" {
			blocks = append(blocks, anthropicsdk.TextBlockParam{Text: text})
		}
	}
	return blocks
}

func (m *Model) convertContents(contents []model.Content) []anthropicsdk.MessageParam {
	var messages []anthropicsdk.MessageParam
	for _, content := range contents {
		switch content.Role {
		case model.RoleSystem:
			// Handled by extractSystemBlocks.
		case model.RoleModel:
			if blocks := convertAssistantBlocks(content); len(blocks) > 0 {
				messages = append(messages, anthropicsdk.NewAssistantMessage(blocks...))
			}
		case model.RoleTool:
			// Tool results must arrive in a user turn.
			if blocks := convertToolResultBlocks(content); len(blocks) > 0 {
				messages = append(messages, anthropicsdk.NewUserMessage(blocks...))
			}
		default: // User content, and unknown roles degrade to user.
			if blocks := convertUserBlocks(content); len(blocks) > 0 {
				messages = append(messages, anthropicsdk.NewUserMessage(blocks...))
			}
		}
	}
	return messages
}

func convertUserBlocks(content model.Content) []anthropicsdk.ContentBlockParamUnion {
	var blocks []anthropicsdk.ContentBlockParamUnion
	for _, part := range content.Parts {
		switch {
		case part.IsText():
			if part.Text != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(part.Text))
			}
		case part.InlineData != nil:
			blocks = append(blocks, anthropicsdk.NewImageBlockBase64(
				part.InlineData.MIMEType,
				base64.StdEncoding.EncodeToString(part.InlineData.Data),
			))
		}
	}
	return blocks
}

func convertAssistantBlocks(content model.Content) []anthropicsdk.ContentBlockParamUnion {
	var blocks []anthropicsdk.ContentBlockParamUnion
	if text := content.Text(); text != "" {
		blocks = append(blocks, anthropicsdk.NewTextBlock(text))
	}
	for _, call := range content.FunctionCalls() {
		input := json.RawMessage(call.Arguments)
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, anthropicsdk.NewToolUseBlock(call.ID, input, call.Name))
	}
	return blocks
}

func convertToolResultBlocks(content model.Content) []anthropicsdk.ContentBlockParamUnion {
	var blocks []anthropicsdk.ContentBlockParamUnion
	for _, fr := range content.FunctionResponses() {
		blocks = append(blocks, anthropicsdk.NewToolResultBlock(fr.ID, string(fr.Response), false))
	}
	return blocks
}

func (m *Model) convertTools(tools map[string]tool.Tool) []anthropicsdk.ToolUnionParam {
	var result []anthropicsdk.ToolUnionParam
	for _, t := range tools {
		declaration := t.Declaration()
		schema := anthropicsdk.ToolInputSchemaParam{
			Type: constant.ValueOf[constant.Object]().Default(),
		}
		if declaration.InputSchema != nil {
			schema.Properties = declaration.InputSchema.Properties
			schema.Required = declaration.InputSchema.Required
		}
		toolParam := anthropicsdk.ToolUnionParamOfTool(schema, declaration.Name)
		if declaration.Description != "" {
			toolParam.OfTool.Description = param.NewOpt(declaration.Description)
		}
		result = append(result, toolParam)
	}
	return result
}

func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	params anthropicsdk.MessageNewParams,
	responseChan chan<- *model.Response,
) {
	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		errorResponse := &model.Response{
			Object:    model.ObjectTypeError,
			Model:     m.name,
			Timestamp: time.Now(),
			Error: &model.ResponseError{
				Message: err.Error(),
				Type:    model.ErrorTypeAPIError,
			},
			TurnComplete: true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	select {
	case responseChan <- m.convertMessage(message):
	case <-ctx.Done():
	}
}

func (m *Model) handleStreamingResponse(
	ctx context.Context,
	params anthropicsdk.MessageNewParams,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var message anthropicsdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			m.sendStreamError(ctx, err, responseChan)
			return
		}

		deltaEvent, ok := event.AsAny().(anthropicsdk.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		textDelta, ok := deltaEvent.Delta.AsAny().(anthropicsdk.TextDelta)
		if !ok || textDelta.Text == "" {
			continue
		}

		content := model.NewModelContent(model.NewTextPart(textDelta.Text))
		partial := &model.Response{
			ID:        message.ID,
			Object:    model.ObjectTypeChatCompletionChunk,
			Created:   time.Now().Unix(),
			Model:     m.name,
			Content:   &content,
			Timestamp: time.Now(),
			Partial:   true,
		}
		select {
		case responseChan <- partial:
		case <-ctx.Done():
			return
		}
	}

	if err := stream.Err(); err != nil {
		m.sendStreamError(ctx, err, responseChan)
		return
	}

	select {
	case responseChan <- m.convertMessage(&message):
	case <-ctx.Done():
	}
}

func (m *Model) sendStreamError(
	ctx context.Context,
	err error,
	responseChan chan<- *model.Response,
) {
	errorResponse := &model.Response{
		Object:    model.ObjectTypeError,
		Model:     m.name,
		Timestamp: time.Now(),
		Error: &model.ResponseError{
			Message: err.Error(),
			Type:    model.ErrorTypeStreamError,
		},
		TurnComplete: true,
	}
	select {
	case responseChan <- errorResponse:
	case <-ctx.Done():
	}
}

// convertMessage maps a complete API message onto a model response.
func (m *Model) convertMessage(message *anthropicsdk.Message) *model.Response {
	var parts []model.Part
	hasToolCall := false
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if b.Text != "" {
				parts = append(parts, model.NewTextPart(b.Text))
			}
		case anthropicsdk.ToolUseBlock:
			parts = append(parts, model.NewFunctionCallPart(b.ID, b.Name, []byte(b.Input)))
			hasToolCall = true
		}
	}

	response := &model.Response{
		ID:           message.ID,
		Object:       model.ObjectTypeChatCompletion,
		Created:      time.Now().Unix(),
		Model:        string(message.Model),
		FinishReason: convertStopReason(message.StopReason),
		Timestamp:    time.Now(),
		TurnComplete: !hasToolCall,
	}
	if len(parts) > 0 {
		content := model.NewModelContent(parts...)
		response.Content = &content
	}
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}
	return response
}

// convertStopReason maps Messages API stop reasons onto the finish reason
// vocabulary shared by the model package.
func convertStopReason(reason anthropicsdk.StopReason) string {
	switch reason {
	case anthropicsdk.StopReasonEndTurn, anthropicsdk.StopReasonStopSequence:
		return "stop"
	case anthropicsdk.StopReasonMaxTokens:
		return "length"
	case anthropicsdk.StopReasonToolUse:
		return "tool_calls"
	default:
		return string(reason)
	}
}
