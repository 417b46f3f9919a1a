//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package client provides an HTTP client for the DuckDuckGo Instant Answer API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client provides methods to interact with the DuckDuckGo Instant Answer API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// New creates a new DuckDuckGo client with the provided configuration.
func New(baseURL, userAgent string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

// FlexibleString unmarshals both strings and numbers. The API is not
// consistent about which one it sends for image dimensions.
type FlexibleString string

// UnmarshalJSON implements json.Unmarshaler.
func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*fs = FlexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*fs = FlexibleString(n.String())
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*fs = FlexibleString(fmt.Sprintf("%v", v))
	return nil
}

// String returns the string representation.
func (fs FlexibleString) String() string {
	return string(fs)
}

// Response represents the response from the DuckDuckGo Instant Answer API.
type Response struct {
	Type             string         `json:"Type"`
	Redirect         string         `json:"Redirect"`
	Definition       string         `json:"Definition"`
	DefinitionSource string         `json:"DefinitionSource"`
	DefinitionURL    string         `json:"DefinitionURL"`
	Heading          string         `json:"Heading"`
	Image            string         `json:"Image"`
	ImageWidth       FlexibleString `json:"ImageWidth"`
	ImageHeight      FlexibleString `json:"ImageHeight"`
	Abstract         string         `json:"Abstract"`
	AbstractText     string         `json:"AbstractText"`
	AbstractSource   string         `json:"AbstractSource"`
	AbstractURL      string         `json:"AbstractURL"`
	Answer           string         `json:"Answer"`
	AnswerType       string         `json:"AnswerType"`
	RelatedTopics    []RelatedTopic `json:"RelatedTopics"`
}

// RelatedTopic represents a related topic from DuckDuckGo.
type RelatedTopic struct {
	Result   string `json:"Result"`
	Icon     Icon   `json:"Icon"`
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

// Icon represents an icon from DuckDuckGo.
type Icon struct {
	URL    string         `json:"URL"`
	Height FlexibleString `json:"Height"`
	Width  FlexibleString `json:"Width"`
}

// Search performs a search query against the Instant Answer API.
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	reqURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &response, nil
}
