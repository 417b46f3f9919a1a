//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package model

import "strings"

// Role constants for content authors.
const (
	// RoleUser marks content supplied by the end user.
	RoleUser = "user"
	// RoleModel marks content produced by the model.
	RoleModel = "model"
	// RoleSystem marks instruction content.
	RoleSystem = "system"
	// RoleTool marks tool execution results fed back to the model.
	RoleTool = "tool"
)

// FunctionCall is a request from the model to execute a declared tool.
type FunctionCall struct {
	// ID pairs the call with its FunctionResponse. Providers that omit it
	// get a synthesized one.
	ID string `json:"id,omitempty"`
	// Name is the declared tool name.
	Name string `json:"name"`
	// Arguments is the JSON-encoded argument object.
	Arguments []byte `json:"arguments,omitempty"`
}

// FunctionResponse is the result of a tool execution, paired to a
// FunctionCall by ID.
type FunctionResponse struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	// Response is the JSON-encoded tool result.
	Response []byte `json:"response,omitempty"`
}

// Blob carries raw bytes with a MIME type, used for inline artifact data.
type Blob struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Part is one element of a Content. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Text: text}
}

// NewFunctionCallPart creates a function call part.
func NewFunctionCallPart(id, name string, arguments []byte) Part {
	return Part{FunctionCall: &FunctionCall{ID: id, Name: name, Arguments: arguments}}
}

// NewFunctionResponsePart creates a function response part.
func NewFunctionResponsePart(id, name string, response []byte) Part {
	return Part{FunctionResponse: &FunctionResponse{ID: id, Name: name, Response: response}}
}

// NewInlineDataPart creates an inline data part.
func NewInlineDataPart(mimeType string, data []byte) Part {
	return Part{InlineData: &Blob{MIMEType: mimeType, Data: data}}
}

// IsText reports whether the part carries text.
func (p Part) IsText() bool { return p.FunctionCall == nil && p.FunctionResponse == nil && p.InlineData == nil }

// IsFunctionCall reports whether the part carries a function call.
func (p Part) IsFunctionCall() bool { return p.FunctionCall != nil }

// IsFunctionResponse reports whether the part carries a function response.
func (p Part) IsFunctionResponse() bool { return p.FunctionResponse != nil }

// Content is a single conversation entry: an author role and its parts.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts,omitempty"`
}

// NewUserContent creates user content from the given parts.
func NewUserContent(parts ...Part) Content {
	return Content{Role: RoleUser, Parts: parts}
}

// NewModelContent creates model content from the given parts.
func NewModelContent(parts ...Part) Content {
	return Content{Role: RoleModel, Parts: parts}
}

// NewSystemContent creates system instruction content.
func NewSystemContent(text string) Content {
	return Content{Role: RoleSystem, Parts: []Part{NewTextPart(text)}}
}

// NewTextContent creates content with a single text part for the given role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{NewTextPart(text)}}
}

// Text returns the concatenation of all text parts.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// FunctionCalls returns all function call parts in order.
func (c *Content) FunctionCalls() []*FunctionCall {
	if c == nil {
		return nil
	}
	var calls []*FunctionCall
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns all function response parts in order.
func (c *Content) FunctionResponses() []*FunctionResponse {
	if c == nil {
		return nil
	}
	var responses []*FunctionResponse
	for _, p := range c.Parts {
		if p.FunctionResponse != nil {
			responses = append(responses, p.FunctionResponse)
		}
	}
	return responses
}

// Clone creates a deep copy of the content.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	clone := Content{Role: c.Role, Parts: make([]Part, len(c.Parts))}
	for i, p := range c.Parts {
		np := Part{Text: p.Text}
		if p.FunctionCall != nil {
			fc := *p.FunctionCall
			fc.Arguments = append([]byte(nil), p.FunctionCall.Arguments...)
			np.FunctionCall = &fc
		}
		if p.FunctionResponse != nil {
			fr := *p.FunctionResponse
			fr.Response = append([]byte(nil), p.FunctionResponse.Response...)
			np.FunctionResponse = &fr
		}
		if p.InlineData != nil {
			blob := Blob{MIMEType: p.InlineData.MIMEType}
			blob.Data = append([]byte(nil), p.InlineData.Data...)
			np.InlineData = &blob
		}
		clone.Parts[i] = np
	}
	return &clone
}
