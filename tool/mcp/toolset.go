//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package mcp exposes tools served by an MCP server as callable tools.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/tool"
	mcp "trpc.group/trpc-go/trpc-mcp-go"
)

// sessionErrorPatterns are the failures worth recreating the session for.
// Configuration errors and plain timeouts are deliberately absent.
var sessionErrorPatterns = []string{
	"session_expired:",
	"session not found",
	"transport is closed",
	"client not initialized",
	"not initialized",
	"connection refused",
	"connection reset",
	"broken pipe",
	"EOF",
	"HTTP 404",
}

// ToolSet exposes the tools of one MCP server. Tool listings are fetched
// lazily and cached; Tools serves the cache when a refresh fails.
type ToolSet struct {
	name   string
	filter ToolFilter
	conn   *conn

	mu    sync.RWMutex
	tools []tool.Tool
}

var _ tool.ToolSet = (*ToolSet)(nil)

// NewToolSet creates a tool set for the MCP server described by config.
// The connection is established on first use.
func NewToolSet(config ConnectionConfig, opts ...ToolSetOption) (*ToolSet, error) {
	cfg := toolSetConfig{
		conn:              config,
		name:              "mcp",
		reconnectAttempts: defaultReconnectAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, err := parseTransport(cfg.conn.Transport); err != nil {
		return nil, err
	}
	if cfg.conn.ClientInfo.Name == "" {
		cfg.conn.ClientInfo = defaultClientInfo
	}
	return &ToolSet{
		name:   cfg.name,
		filter: cfg.filter,
		conn:   newConn(cfg.conn, cfg.clientOptions, cfg.reconnectAttempts),
	}, nil
}

// Tools implements tool.ToolSet. A failed refresh falls back to the last
// successfully fetched listing.
func (ts *ToolSet) Tools(ctx context.Context) []tool.Tool {
	if err := ts.refresh(ctx); err != nil {
		log.Errorf("mcp tool set %s: refresh failed: %v", ts.name, err)
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()
	tools := make([]tool.Tool, len(ts.tools))
	copy(tools, ts.tools)
	return tools
}

// Close implements tool.ToolSet.
func (ts *ToolSet) Close() error {
	return ts.conn.close()
}

// Name implements tool.ToolSet.
func (ts *ToolSet) Name() string {
	return ts.name
}

func (ts *ToolSet) refresh(ctx context.Context) error {
	defs, err := ts.conn.listTools(ctx)
	if err != nil {
		return err
	}

	defs = ts.applyFilter(ctx, defs)
	tools := make([]tool.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, newMCPTool(def, ts.conn))
	}

	ts.mu.Lock()
	ts.tools = tools
	ts.mu.Unlock()

	log.Debugf("mcp tool set %s: refreshed %d tools", ts.name, len(tools))
	return nil
}

func (ts *ToolSet) applyFilter(ctx context.Context, defs []mcp.Tool) []mcp.Tool {
	if ts.filter == nil {
		return defs
	}

	infos := make([]ToolInfo, len(defs))
	for i, def := range defs {
		infos[i] = ToolInfo{Name: def.Name, Description: def.Description}
	}
	kept := make(map[string]struct{})
	for _, info := range ts.filter.Filter(ctx, infos) {
		kept[info.Name] = struct{}{}
	}

	filtered := make([]mcp.Tool, 0, len(kept))
	for _, def := range defs {
		if _, ok := kept[def.Name]; ok {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// conn owns the MCP client and its session lifecycle. Operations run under
// a read lock; session recreation takes the write lock and is deduplicated
// across goroutines through singleflight.
type conn struct {
	cfg               ConnectionConfig
	clientOptions     []mcp.ClientOption
	reconnectAttempts int

	mu        sync.RWMutex
	client    mcp.Connector
	ready     bool
	reconnect singleflight.Group
}

func newConn(cfg ConnectionConfig, clientOptions []mcp.ClientOption, reconnectAttempts int) *conn {
	return &conn{
		cfg:               cfg,
		clientOptions:     clientOptions,
		reconnectAttempts: reconnectAttempts,
	}
}

// connect dials the server and runs the MCP handshake. It is a no-op when
// the session is already established.
func (c *conn) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return nil
	}

	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.client = client
	c.ready = true
	return nil
}

// dial creates and initializes a client. Callers hold c.mu.
func (c *conn) dial(ctx context.Context) (mcp.Connector, error) {
	client, err := c.newClient()
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}

	initCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := client.Initialize(initCtx, &mcp.InitializeRequest{})
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			log.Warnf("mcp: close after failed handshake: %v", closeErr)
		}
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}

	log.Debugf("mcp session established: server=%s version=%s protocol=%s",
		resp.ServerInfo.Name, resp.ServerInfo.Version, resp.ProtocolVersion)
	return client, nil
}

func (c *conn) newClient() (mcp.Connector, error) {
	transportType, err := parseTransport(c.cfg.Transport)
	if err != nil {
		return nil, err
	}

	switch transportType {
	case transportStdio:
		return mcp.NewStdioClient(mcp.StdioTransportConfig{
			ServerParams: mcp.StdioServerParameters{
				Command: c.cfg.Command,
				Args:    c.cfg.Args,
			},
			Timeout: c.cfg.Timeout,
		}, c.cfg.ClientInfo)
	case transportSSE:
		return mcp.NewSSEClient(c.cfg.ServerURL, c.cfg.ClientInfo, c.httpOptions()...)
	case transportStreamable:
		return mcp.NewClient(c.cfg.ServerURL, c.cfg.ClientInfo, c.httpOptions()...)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", c.cfg.Transport)
	}
}

func (c *conn) httpOptions() []mcp.ClientOption {
	var options []mcp.ClientOption
	if len(c.cfg.Headers) > 0 {
		headers := http.Header{}
		for k, v := range c.cfg.Headers {
			headers.Set(k, v)
		}
		options = append(options, mcp.WithHTTPHeaders(headers))
	}
	return append(options, c.clientOptions...)
}

// withTimeout applies the configured timeout unless the caller already set
// a deadline.
func (c *conn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		if _, has := ctx.Deadline(); !has {
			return context.WithTimeout(ctx, c.cfg.Timeout)
		}
	}
	return ctx, func() {}
}

func (c *conn) listTools(ctx context.Context) ([]mcp.Tool, error) {
	var result []mcp.Tool
	err := c.withReconnect(ctx, func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.client == nil {
			return fmt.Errorf("transport is closed")
		}

		listCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		resp, err := c.client.ListTools(listCtx, &mcp.ListToolsRequest{})
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		result = resp.Tools
		return nil
	})
	return result, err
}

func (c *conn) callTool(ctx context.Context, name string, args map[string]any) ([]mcp.Content, error) {
	var result []mcp.Content
	err := c.withReconnect(ctx, func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.client == nil {
			return fmt.Errorf("transport is closed")
		}

		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		req := &mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args

		resp, err := c.client.CallTool(callCtx, req)
		if err != nil {
			return fmt.Errorf("call tool %s: %w", name, err)
		}
		result = resp.Content
		return nil
	})
	return result, err
}

// withReconnect runs op, recreating the session and retrying when op fails
// with a session-scoped error. The original error is returned once the
// attempt budget is spent.
func (c *conn) withReconnect(ctx context.Context, op func() error) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	err := op()
	if err == nil || !isSessionError(err) {
		return err
	}

	for attempt := 1; attempt <= c.reconnectAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("reconnect aborted: %w", ctx.Err())
		}

		log.Debugf("mcp: session error, reconnecting (attempt %d/%d): %v",
			attempt, c.reconnectAttempts, err)
		if reconnectErr := c.recreate(ctx); reconnectErr != nil {
			log.Warnf("mcp: session recreation failed: %v", reconnectErr)
			continue
		}

		err = op()
		if err == nil || !isSessionError(err) {
			return err
		}
	}
	return err
}

// recreate tears down the current client and dials a fresh session.
// Concurrent callers share a single recreation.
func (c *conn) recreate(ctx context.Context) error {
	_, err, _ := c.reconnect.Do("reconnect", func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.client != nil {
			if closeErr := c.client.Close(); closeErr != nil {
				log.Warnf("mcp: close stale client: %v", closeErr)
			}
			c.client = nil
		}
		c.ready = false

		client, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		c.client = client
		c.ready = true
		return nil, nil
	})
	return err
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.ready = false
	if err != nil {
		return fmt.Errorf("close mcp client: %w", err)
	}
	return nil
}

func isSessionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range sessionErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
