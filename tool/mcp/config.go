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
	"fmt"
	"time"

	mcp "trpc.group/trpc-go/trpc-mcp-go"
)

// transport identifies how the client reaches the MCP server.
type transport string

const (
	transportStdio      transport = "stdio"
	transportSSE        transport = "sse"
	transportStreamable transport = "streamable"
)

// defaultReconnectAttempts bounds per-operation session recovery retries.
const defaultReconnectAttempts = 2

var defaultClientInfo = mcp.Implementation{
	Name:    "trpc-adk-go",
	Version: "1.0.0",
}

// ConnectionConfig describes how to reach an MCP server.
type ConnectionConfig struct {
	// Transport selects the wire protocol: "stdio", "sse" or "streamable".
	Transport string `json:"transport"`

	// ServerURL is the endpoint for sse and streamable transports.
	ServerURL string `json:"server_url,omitempty"`
	// Headers are extra HTTP headers sent with sse and streamable requests.
	Headers map[string]string `json:"headers,omitempty"`

	// Command and Args launch the server process for the stdio transport.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Timeout applies per operation when the caller's context has no deadline.
	Timeout time.Duration `json:"timeout,omitempty"`

	// ClientInfo identifies this client during the MCP handshake.
	ClientInfo mcp.Implementation `json:"client_info,omitempty"`
}

// toolSetConfig collects the resolved ToolSet options.
type toolSetConfig struct {
	conn              ConnectionConfig
	name              string
	filter            ToolFilter
	clientOptions     []mcp.ClientOption
	reconnectAttempts int
}

// ToolSetOption configures a ToolSet.
type ToolSetOption func(*toolSetConfig)

// WithName sets the tool set name reported by Name.
func WithName(name string) ToolSetOption {
	return func(c *toolSetConfig) {
		c.name = name
	}
}

// WithToolFilter restricts which server tools the set exposes.
func WithToolFilter(filter ToolFilter) ToolSetOption {
	return func(c *toolSetConfig) {
		c.filter = filter
	}
}

// WithClientOptions forwards options to the underlying MCP client.
func WithClientOptions(options ...mcp.ClientOption) ToolSetOption {
	return func(c *toolSetConfig) {
		c.clientOptions = append(c.clientOptions, options...)
	}
}

// WithReconnectAttempts sets how many times an operation may recreate an
// expired session before giving up. Zero disables reconnection.
func WithReconnectAttempts(n int) ToolSetOption {
	return func(c *toolSetConfig) {
		c.reconnectAttempts = n
	}
}

// parseTransport validates the configured transport string.
func parseTransport(t string) (transport, error) {
	switch t {
	case "stdio":
		return transportStdio, nil
	case "sse":
		return transportSSE, nil
	case "streamable", "streamable_http":
		return transportStreamable, nil
	default:
		return "", fmt.Errorf("unsupported transport %q, supported: stdio, sse, streamable", t)
	}
}
