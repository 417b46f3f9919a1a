//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package mock provides a canned-response model for tests and examples.
package mock

import (
	"context"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-adk-go/model"
)

const defaultResponseText = "This is a response from the mock model."

// Option configures a Model.
type Option func(*Model)

// WithName sets the reported model name (default "mock").
func WithName(name string) Option {
	return func(m *Model) {
		m.name = name
	}
}

// WithResponseText makes every call answer with the given text.
func WithResponseText(text string) Option {
	return func(m *Model) {
		m.responseText = text
	}
}

// WithResponses scripts the playback: one batch per GenerateContent call,
// in order. After the script is exhausted the last batch repeats.
func WithResponses(batches ...[]*model.Response) Option {
	return func(m *Model) {
		m.batches = batches
	}
}

// WithError makes GenerateContent fail with err.
func WithError(err error) Option {
	return func(m *Model) {
		m.err = err
	}
}

// WithStreaming splits text answers into partial chunks of chunkSize runes
// followed by the aggregated final response.
func WithStreaming(chunkSize int) Option {
	return func(m *Model) {
		m.streamChunkSize = chunkSize
	}
}

// WithStreamDelay sleeps between streamed chunks.
func WithStreamDelay(delay time.Duration) Option {
	return func(m *Model) {
		m.streamDelay = delay
	}
}

// Model replays canned responses. Safe for concurrent use; scripted batches
// play back in call order across goroutines.
type Model struct {
	name            string
	responseText    string
	batches         [][]*model.Response
	err             error
	streamChunkSize int
	streamDelay     time.Duration

	mu       sync.Mutex
	next     int
	requests []*model.Request
}

// New creates a mock model.
func New(opts ...Option) *Model {
	m := &Model{
		name:         "mock",
		responseText: defaultResponseText,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, request)
	var batch []*model.Response
	if len(m.batches) > 0 {
		index := m.next
		if index >= len(m.batches) {
			index = len(m.batches) - 1
		}
		m.next++
		batch = m.batches[index]
	}
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if batch == nil {
		batch = []*model.Response{model.NewTextResponse(m.responseText)}
	}

	ch := make(chan *model.Response, 16)
	go func() {
		defer close(ch)
		for _, rsp := range batch {
			for _, out := range m.explode(rsp) {
				if m.streamDelay > 0 {
					select {
					case <-time.After(m.streamDelay):
					case <-ctx.Done():
						return
					}
				}
				select {
				case ch <- out:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// explode turns a final text response into partial chunks plus the final
// response when streaming is configured.
func (m *Model) explode(rsp *model.Response) []*model.Response {
	if m.streamChunkSize <= 0 || rsp.Partial || rsp.Content == nil {
		return []*model.Response{rsp}
	}
	text := rsp.Content.Text()
	if text == "" || len(rsp.Content.FunctionCalls()) > 0 {
		return []*model.Response{rsp}
	}

	var out []*model.Response
	runes := []rune(text)
	for start := 0; start < len(runes); start += m.streamChunkSize {
		end := start + m.streamChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		content := model.NewModelContent(model.NewTextPart(string(runes[start:end])))
		out = append(out, &model.Response{
			Object:  model.ObjectTypeChatCompletionChunk,
			Model:   m.name,
			Content: &content,
			Partial: true,
		})
	}
	return append(out, rsp)
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// Requests returns the requests received so far.
func (m *Model) Requests() []*model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Request(nil), m.requests...)
}

// CallCount returns how many times GenerateContent was called.
func (m *Model) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
