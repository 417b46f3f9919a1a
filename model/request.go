//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package model

import "trpc.group/trpc-go/trpc-adk-go/tool"

// GenerationConfig contains configuration for content generation.
type GenerationConfig struct {
	// Stream indicates whether to stream the response.
	Stream bool `json:"stream"`

	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// TopK limits sampling to the K most likely tokens. Ignored by providers
	// that do not support it.
	TopK *int `json:"top_k,omitempty"`

	// MaxOutputTokens is the maximum number of tokens to generate.
	MaxOutputTokens *int `json:"max_output_tokens,omitempty"`

	// Stop sequences where generation stops.
	Stop []string `json:"stop,omitempty"`

	// ResponseSchema asks the provider for structured output matching the
	// given JSON schema, when supported.
	ResponseSchema map[string]any `json:"response_schema,omitempty"`
}

// Request is the request to the model.
type Request struct {
	// Contents is the conversation history, oldest first. System instruction
	// content goes first when present.
	Contents []Content `json:"contents"`

	// GenerationConfig contains the generation parameters.
	GenerationConfig `json:",inline"`

	// Tools declared for this call, keyed by tool name.
	// Not serialized; declarations are converted per provider.
	Tools map[string]tool.Tool `json:"-"`
}
