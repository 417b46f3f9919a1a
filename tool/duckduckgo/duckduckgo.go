//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package duckduckgo provides a DuckDuckGo Instant Answer API search tool.
// The API serves factual, encyclopedic information such as entity details,
// definitions, and calculations. It is NOT suitable for real-time data like
// current weather, latest news, or live stock prices.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-adk-go/tool"
	"trpc.group/trpc-go/trpc-adk-go/tool/duckduckgo/internal/client"
	"trpc.group/trpc-go/trpc-adk-go/tool/function"
)

const (
	// maxResults is the maximum number of search results to return.
	maxResults = 5
	// maxTitleLength is the maximum length for extracted titles.
	maxTitleLength = 50
	// defaultBaseURL is the default base URL for the Instant Answer API.
	defaultBaseURL = "https://api.duckduckgo.com"
	// defaultUserAgent is the default user agent for HTTP requests.
	defaultUserAgent = "trpc-adk-go-duckduckgo/1.0"
	// defaultTimeout is the default timeout for HTTP requests.
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring the DuckDuckGo tool.
type Option func(*config)

type config struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// WithBaseURL sets the base URL for the DuckDuckGo API.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithUserAgent sets the user agent for HTTP requests.
func WithUserAgent(userAgent string) Option {
	return func(c *config) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient sets the HTTP client to use.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

type searchRequest struct {
	Query string `json:"query" description:"The search query to execute on DuckDuckGo"`
}

type searchResponse struct {
	Query   string       `json:"query"`
	Results []resultItem `json:"results"`
	Summary string       `json:"summary"`
}

type resultItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type ddgTool struct {
	client *client.Client
}

// NewTool creates a new DuckDuckGo search tool with the provided options.
func NewTool(opts ...Option) tool.CallableTool {
	cfg := &config{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	searchTool := &ddgTool{
		client: client.New(cfg.baseURL, cfg.userAgent, cfg.httpClient),
	}

	return function.New(
		searchTool.search,
		function.WithName("duckduckgo_search"),
		function.WithDescription("Search using DuckDuckGo's Instant Answer API for "+
			"factual, encyclopedic information. Works best for entity information, "+
			"definitions, mathematical calculations, and historical facts. "+
			"NOT suitable for real-time data such as current weather, live stock "+
			"prices, or latest news. "+
			"Returns structured results with abstracts, definitions, and related topics."),
	)
}

func (t *ddgTool) search(ctx context.Context, req searchRequest) (searchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return searchResponse{}, tool.NewError("duckduckgo_search", "empty search query", nil)
	}

	response, err := t.client.Search(ctx, req.Query)
	if err != nil {
		return searchResponse{}, tool.NewError("duckduckgo_search", "search failed", err)
	}

	var results []resultItem
	var summaryParts []string

	if response.Answer != "" {
		summaryParts = append(summaryParts, fmt.Sprintf("Answer: %s", response.Answer))
	}
	if response.AbstractText != "" {
		summaryParts = append(summaryParts, fmt.Sprintf("Abstract: %s", response.AbstractText))
		if response.AbstractSource != "" {
			summaryParts = append(summaryParts, fmt.Sprintf("Source: %s", response.AbstractSource))
		}
	}
	if response.Definition != "" {
		summaryParts = append(summaryParts, fmt.Sprintf("Definition: %s", response.Definition))
		if response.DefinitionSource != "" {
			summaryParts = append(summaryParts, fmt.Sprintf("Definition Source: %s", response.DefinitionSource))
		}
	}

	for i, topic := range response.RelatedTopics {
		if i >= maxResults {
			break
		}
		if topic.Text != "" && topic.FirstURL != "" {
			results = append(results, resultItem{
				Title:       extractTitleFromTopic(topic.Text),
				URL:         topic.FirstURL,
				Description: topic.Text,
			})
		}
	}

	// Without related topics, surface the instant answer as the one result.
	if len(results) == 0 && len(summaryParts) > 0 {
		results = append(results, resultItem{
			Title:       fmt.Sprintf("DuckDuckGo search: %s", req.Query),
			URL:         fmt.Sprintf("https://duckduckgo.com/?q=%s", strings.ReplaceAll(req.Query, " ", "+")),
			Description: strings.Join(summaryParts, " | "),
		})
	}

	summary := fmt.Sprintf("Found %d results for query '%s'", len(results), req.Query)
	if len(summaryParts) > 0 {
		summary = strings.Join(summaryParts, " | ")
	}

	return searchResponse{
		Query:   req.Query,
		Results: results,
		Summary: summary,
	}, nil
}

// extractTitleFromTopic takes the leading segment of a topic text as a title.
func extractTitleFromTopic(text string) string {
	title := strings.TrimSpace(text)
	if parts := strings.Split(text, " - "); len(parts) > 0 && parts[0] != "" {
		title = strings.TrimSpace(parts[0])
	}
	if len(title) > maxTitleLength {
		return title[:maxTitleLength-3] + "..."
	}
	return title
}
