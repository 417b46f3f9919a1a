//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package schema defines the wire structs of the debug HTTP server. Field
// names follow the camel-case contract of the ADK Web UI.
package schema

// Session is the flattened session representation the UI expects. State
// values and event payloads are decoded JSON, not raw bytes.
type Session struct {
	AppName    string           `json:"appName"`
	UserID     string           `json:"userId"`
	ID         string           `json:"id"`
	CreateTime int64            `json:"createTime"`
	UpdateTime int64            `json:"updateTime"`
	State      map[string]any   `json:"state"`
	Events     []map[string]any `json:"events"`
}

// Part is a single message segment. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// InlineData carries base64-encoded binary data.
type InlineData struct {
	Data        string `json:"data"`
	MimeType    string `json:"mimeType"`
	DisplayName string `json:"displayName,omitempty"`
}

// FunctionCall matches the GenAI functionCall part.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse matches the GenAI functionResponse part.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Response any    `json:"response,omitempty"`
}

// Content is one conversation entry.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// AgentRunRequest is the request payload of /run and /run_sse.
type AgentRunRequest struct {
	AppName    string  `json:"appName"`
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	NewMessage Content `json:"newMessage"`
	Streaming  bool    `json:"streaming"`
}
