//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package gemini provides a model implementation backed by the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const (
	// GoogleAPIKeyEnv is the environment variable name for the Google API key.
	GoogleAPIKeyEnv = "GOOGLE_API_KEY"

	// defaultChannelBufferSize is the default response channel buffer size.
	defaultChannelBufferSize = 256
)

type options struct {
	apiKey            string
	clientOptions     *genai.ClientConfig
	channelBufferSize int
}

// Option configures the Gemini model.
type Option func(*options)

// WithAPIKey sets the Google API key.
// If not provided, the GOOGLE_API_KEY environment variable is used.
// APIKey priority: WithClientOptions > WithAPIKey > GOOGLE_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(o *options) {
		o.apiKey = apiKey
	}
}

// WithClientOptions sets additional options for the Gemini client config.
// APIKey priority: WithClientOptions > WithAPIKey > GOOGLE_API_KEY environment variable.
func WithClientOptions(clientOptions *genai.ClientConfig) Option {
	return func(o *options) {
		c := *clientOptions
		o.clientOptions = &c
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

// Model implements model.Model using the Gemini API.
type Model struct {
	client            *genai.Client
	name              string
	channelBufferSize int
}

var _ model.Model = (*Model)(nil)

// New creates a Gemini model with the given name, for example
// "gemini-2.0-flash".
func New(ctx context.Context, name string, opts ...Option) (*Model, error) {
	o := &options{
		apiKey:            os.Getenv(GoogleAPIKeyEnv),
		clientOptions:     &genai.ClientConfig{},
		channelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.clientOptions.APIKey == "" {
		o.clientOptions.APIKey = o.apiKey
	}
	if o.clientOptions.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not provided")
	}

	client, err := genai.NewClient(ctx, o.clientOptions)
	if err != nil {
		return nil, err
	}
	return &Model{
		client:            client,
		name:              name,
		channelBufferSize: o.channelBufferSize,
	}, nil
}

// Info returns basic information about the model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent sends the request to the Gemini API and streams responses
// on the returned channel.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	contents := convertContents(request.Contents)
	config := m.buildConfig(request)
	responseChan := make(chan *model.Response, m.channelBufferSize)

	go func() {
		defer close(responseChan)
		if request.GenerationConfig.Stream {
			m.handleStreamingResponse(ctx, contents, config, responseChan)
		} else {
			m.handleNonStreamingResponse(ctx, contents, config, responseChan)
		}
	}()

	return responseChan, nil
}

func (m *Model) buildConfig(request *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if request.GenerationConfig.Temperature != nil {
		temperature := float32(*request.GenerationConfig.Temperature)
		config.Temperature = &temperature
	}
	if request.GenerationConfig.TopP != nil {
		topP := float32(*request.GenerationConfig.TopP)
		config.TopP = &topP
	}
	if request.GenerationConfig.TopK != nil {
		topK := float32(*request.GenerationConfig.TopK)
		config.TopK = &topK
	}
	if request.GenerationConfig.MaxOutputTokens != nil {
		config.MaxOutputTokens = int32(*request.GenerationConfig.MaxOutputTokens)
	}
	if len(request.GenerationConfig.Stop) > 0 {
		config.StopSequences = request.GenerationConfig.Stop
	}
	if schema := convertResponseSchema(request.GenerationConfig.ResponseSchema); schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}
	if system := extractSystemInstruction(request.Contents); system != nil {
		config.SystemInstruction = system
	}
	if len(request.Tools) > 0 {
		config.Tools = convertTools(request.Tools)
	}
	return config
}

// extractSystemInstruction collects system contents, which the Gemini API
// takes as a config field instead of a message.
func extractSystemInstruction(contents []model.Content) *genai.Content {
	var parts []*genai.Part
	for _, content := range contents {
		if content.Role != model.RoleSystem {
			continue
		}
		if text := content.Text(); text != "" {
			parts = append(parts, genai.NewPartFromText(text))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &genai.Content{Parts: parts}
}

func convertContents(contents []model.Content) []*genai.Content {
	var result []*genai.Content
	for _, content := range contents {
		if content.Role == model.RoleSystem {
			// Handled by extractSystemInstruction.
			continue
		}
		parts := convertParts(content.Parts)
		if len(parts) == 0 {
			continue
		}
		role := genai.RoleUser
		if content.Role == model.RoleModel {
			role = genai.RoleModel
		}
		// Tool results and unknown roles ride in a user turn.
		result = append(result, &genai.Content{Role: role, Parts: parts})
	}
	return result
}

func convertParts(parts []model.Part) []*genai.Part {
	var result []*genai.Part
	for _, part := range parts {
		switch {
		case part.IsText():
			if part.Text != "" {
				result = append(result, genai.NewPartFromText(part.Text))
			}
		case part.InlineData != nil:
			result = append(result, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				},
			})
		case part.IsFunctionCall():
			result = append(result, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: decodeArgs(part.FunctionCall.Arguments),
				},
			})
		case part.IsFunctionResponse():
			result = append(result, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       part.FunctionResponse.ID,
					Name:     part.FunctionResponse.Name,
					Response: decodeResponse(part.FunctionResponse.Response),
				},
			})
		}
	}
	return result
}

func decodeArgs(raw []byte) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}

// decodeResponse maps a raw tool result onto the object shape the API
// expects. Non object results are wrapped under a "result" key.
func decodeResponse(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	response := map[string]any{}
	if err := json.Unmarshal(raw, &response); err != nil {
		return map[string]any{"result": string(raw)}
	}
	return response
}

func convertTools(tools map[string]tool.Tool) []*genai.Tool {
	var declarations []*genai.FunctionDeclaration
	for _, t := range tools {
		declaration := t.Declaration()
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        declaration.Name,
			Description: declaration.Description,
			Parameters:  convertSchema(declaration.InputSchema),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertSchema(schema *tool.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}
	converted := &genai.Schema{
		Type:        convertSchemaType(schema.Type),
		Description: schema.Description,
		Required:    schema.Required,
		Enum:        schema.Enum,
		Items:       convertSchema(schema.Items),
	}
	if len(schema.Properties) > 0 {
		converted.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, property := range schema.Properties {
			converted.Properties[name] = convertSchema(property)
		}
	}
	return converted
}

func convertSchemaType(schemaType string) genai.Type {
	switch strings.ToLower(schemaType) {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}

// convertResponseSchema maps a JSON schema document onto the API schema
// type, normalizing lowercase type names along the way.
func convertResponseSchema(schema map[string]any) *genai.Schema {
	if len(schema) == 0 {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var toolSchema tool.Schema
	if err := json.Unmarshal(raw, &toolSchema); err != nil {
		return nil
	}
	return convertSchema(&toolSchema)
}

func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	responseChan chan<- *model.Response,
) {
	response, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		m.sendError(ctx, err, model.ErrorTypeAPIError, responseChan)
		return
	}
	select {
	case responseChan <- m.convertResponse(response):
	case <-ctx.Done():
	}
}

func (m *Model) handleStreamingResponse(
	ctx context.Context,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Models.GenerateContentStream(ctx, m.name, contents, config)

	var text strings.Builder
	var callParts []model.Part
	var usage *model.Usage
	var finishReason genai.FinishReason
	callIndex := 0

	for response, err := range stream {
		if err != nil {
			m.sendError(ctx, err, model.ErrorTypeStreamError, responseChan)
			return
		}
		if response == nil || len(response.Candidates) == 0 {
			continue
		}
		candidate := response.Candidates[0]
		if candidate.FinishReason != "" {
			finishReason = candidate.FinishReason
		}
		if response.UsageMetadata != nil {
			usage = convertUsage(response.UsageMetadata)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				// Function calls arrive whole, not as deltas.
				callParts = append(callParts, model.NewFunctionCallPart(
					synthesizeCallID(part.FunctionCall.ID, callIndex),
					part.FunctionCall.Name,
					encodeArgs(part.FunctionCall.Args),
				))
				callIndex++
				continue
			}
			if part.Text == "" {
				continue
			}
			text.WriteString(part.Text)
			content := model.NewModelContent(model.NewTextPart(part.Text))
			partial := &model.Response{
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
	}

	var parts []model.Part
	if text.Len() > 0 {
		parts = append(parts, model.NewTextPart(text.String()))
	}
	parts = append(parts, callParts...)

	final := &model.Response{
		Object:       model.ObjectTypeChatCompletion,
		Created:      time.Now().Unix(),
		Model:        m.name,
		FinishReason: convertFinishReason(finishReason, len(callParts) > 0),
		Timestamp:    time.Now(),
		Usage:        usage,
		TurnComplete: len(callParts) == 0,
	}
	if len(parts) > 0 {
		content := model.NewModelContent(parts...)
		final.Content = &content
	}
	select {
	case responseChan <- final:
	case <-ctx.Done():
	}
}

func (m *Model) sendError(
	ctx context.Context,
	err error,
	errorType string,
	responseChan chan<- *model.Response,
) {
	errorResponse := &model.Response{
		Object:    model.ObjectTypeError,
		Model:     m.name,
		Timestamp: time.Now(),
		Error: &model.ResponseError{
			Message: err.Error(),
			Type:    errorType,
		},
		TurnComplete: true,
	}
	select {
	case responseChan <- errorResponse:
	case <-ctx.Done():
	}
}

// convertResponse maps a complete API response onto a model response.
func (m *Model) convertResponse(response *genai.GenerateContentResponse) *model.Response {
	modelName := m.name
	if response.ModelVersion != "" {
		modelName = response.ModelVersion
	}
	result := &model.Response{
		Object:    model.ObjectTypeChatCompletion,
		Created:   time.Now().Unix(),
		Model:     modelName,
		Timestamp: time.Now(),
	}
	if response.UsageMetadata != nil {
		result.Usage = convertUsage(response.UsageMetadata)
	}
	if len(response.Candidates) == 0 {
		result.TurnComplete = true
		return result
	}

	candidate := response.Candidates[0]
	var parts []model.Part
	hasToolCall := false
	callIndex := 0
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.FunctionCall != nil:
				parts = append(parts, model.NewFunctionCallPart(
					synthesizeCallID(part.FunctionCall.ID, callIndex),
					part.FunctionCall.Name,
					encodeArgs(part.FunctionCall.Args),
				))
				hasToolCall = true
				callIndex++
			case part.InlineData != nil:
				parts = append(parts, model.NewInlineDataPart(
					part.InlineData.MIMEType,
					part.InlineData.Data,
				))
			case part.Text != "":
				parts = append(parts, model.NewTextPart(part.Text))
			}
		}
	}
	if len(parts) > 0 {
		content := model.NewModelContent(parts...)
		result.Content = &content
	}
	result.FinishReason = convertFinishReason(candidate.FinishReason, hasToolCall)
	result.TurnComplete = !hasToolCall
	return result
}

func convertUsage(metadata *genai.GenerateContentResponseUsageMetadata) *model.Usage {
	return &model.Usage{
		PromptTokens:     int(metadata.PromptTokenCount),
		CompletionTokens: int(metadata.CandidatesTokenCount),
		TotalTokens:      int(metadata.TotalTokenCount),
	}
}

// convertFinishReason maps Gemini finish reasons onto the finish reason
// vocabulary shared by the model package.
func convertFinishReason(reason genai.FinishReason, hasToolCall bool) string {
	if hasToolCall {
		return "tool_calls"
	}
	switch reason {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case "":
		return ""
	default:
		return strings.ToLower(string(reason))
	}
}

func encodeArgs(args map[string]any) []byte {
	if len(args) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// synthesizeCallID keeps tool call IDs stable when the API omits them.
func synthesizeCallID(id string, index int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("auto_call_%d", index)
}
