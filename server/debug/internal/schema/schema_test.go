//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentRunRequestDecode(t *testing.T) {
	payload := `{
		"appName": "assistant",
		"userId": "u1",
		"sessionId": "s1",
		"streaming": true,
		"newMessage": {
			"role": "user",
			"parts": [
				{"text": "read the file"},
				{"functionCall": {"name": "read_file", "args": {"path": "a.txt"}}},
				{"functionResponse": {"id": "call-1", "name": "read_file", "response": {"content": "hi"}}},
				{"inlineData": {"mimeType": "image/png", "data": "aGVsbG8=", "displayName": "pic"}}
			]
		}
	}`

	var req AgentRunRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	assert.Equal(t, "assistant", req.AppName)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, "s1", req.SessionID)
	assert.True(t, req.Streaming)
	assert.Equal(t, "user", req.NewMessage.Role)

	require.Len(t, req.NewMessage.Parts, 4)
	assert.Equal(t, "read the file", req.NewMessage.Parts[0].Text)
	require.NotNil(t, req.NewMessage.Parts[1].FunctionCall)
	assert.Equal(t, "read_file", req.NewMessage.Parts[1].FunctionCall.Name)
	assert.Equal(t, map[string]any{"path": "a.txt"}, req.NewMessage.Parts[1].FunctionCall.Args)
	require.NotNil(t, req.NewMessage.Parts[2].FunctionResponse)
	assert.Equal(t, "call-1", req.NewMessage.Parts[2].FunctionResponse.ID)
	require.NotNil(t, req.NewMessage.Parts[3].InlineData)
	assert.Equal(t, "aGVsbG8=", req.NewMessage.Parts[3].InlineData.Data)
}

func TestPartOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Part{Text: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello"}`, string(data))
}
