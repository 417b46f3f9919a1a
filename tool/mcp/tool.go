//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/tool"
	mcp "trpc.group/trpc-go/trpc-mcp-go"
)

// toolCaller executes a named tool on the MCP server.
type toolCaller interface {
	callTool(ctx context.Context, name string, args map[string]any) ([]mcp.Content, error)
}

// mcpTool exposes one server-side MCP tool as a CallableTool.
type mcpTool struct {
	def    mcp.Tool
	schema *tool.Schema
	caller toolCaller
}

var _ tool.CallableTool = (*mcpTool)(nil)

func newMCPTool(def mcp.Tool, caller toolCaller) *mcpTool {
	return &mcpTool{
		def:    def,
		schema: convertSchema(def.InputSchema),
		caller: caller,
	}
}

// Call implements tool.CallableTool.
func (t *mcpTool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	args := make(map[string]any)
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &args); err != nil {
			return nil, tool.NewError(t.def.Name, "invalid arguments", err)
		}
	}

	contents, err := t.caller.callTool(ctx, t.def.Name, args)
	if err != nil {
		return nil, tool.NewError(t.def.Name, "mcp call failed", err)
	}
	return convertContent(contents), nil
}

// Declaration implements tool.Tool.
func (t *mcpTool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        t.def.Name,
		Description: t.def.Description,
		InputSchema: t.schema,
	}
}

// convertContent flattens MCP call results for model consumption. Text
// contents are joined; anything else is passed through untouched.
func convertContent(contents []mcp.Content) any {
	var texts []string
	for _, c := range contents {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	switch {
	case len(texts) == len(contents) && len(texts) > 0:
		return strings.Join(texts, "\n")
	case len(contents) == 0:
		return ""
	default:
		return contents
	}
}

// convertSchema maps the server-provided JSON schema onto the local schema
// type via a JSON round trip. A nil or unreadable schema degrades to a bare
// object so the declaration stays usable.
func convertSchema(src any) *tool.Schema {
	fallback := &tool.Schema{Type: "object"}
	if src == nil {
		return fallback
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return fallback
	}
	schema := &tool.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return fallback
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema
}
