//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory memory service implementation.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-adk-go/memory"
	"trpc.group/trpc-go/trpc-adk-go/memory/internal/match"
)

var _ memory.Service = (*MemoryService)(nil)

const defaultEntryLimit = 1000

// appMemories holds the remembered sessions of a single app.
type appMemories struct {
	mu    sync.RWMutex
	users map[string]map[string][]memory.Entry // userID -> sessionID -> entries
}

func newAppMemories() *appMemories {
	return &appMemories{
		users: make(map[string]map[string][]memory.Entry),
	}
}

// serviceOpts contains options for the memory service.
type serviceOpts struct {
	// entryLimit caps how many entries one session ingestion keeps.
	entryLimit int
}

// ServiceOpt is the option for the in-memory memory service.
type ServiceOpt func(*serviceOpts)

// WithEntryLimit caps the number of entries kept per ingested session. When a
// batch exceeds the limit, the most recent entries win.
func WithEntryLimit(limit int) ServiceOpt {
	return func(opts *serviceOpts) {
		opts.entryLimit = limit
	}
}

// MemoryService is an in-memory implementation of memory.Service.
type MemoryService struct {
	mu   sync.RWMutex
	apps map[string]*appMemories
	opts serviceOpts
}

// NewMemoryService creates a new in-memory memory service.
func NewMemoryService(options ...ServiceOpt) *MemoryService {
	opts := serviceOpts{entryLimit: defaultEntryLimit}
	for _, option := range options {
		option(&opts)
	}
	return &MemoryService{
		apps: make(map[string]*appMemories),
		opts: opts,
	}
}

// getAppMemories gets or creates the memories of the given app.
func (s *MemoryService) getAppMemories(appName string) *appMemories {
	s.mu.RLock()
	app, ok := s.apps[appName]
	if ok {
		s.mu.RUnlock()
		return app
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double check after acquiring write lock.
	if app, ok = s.apps[appName]; ok {
		return app
	}
	app = newAppMemories()
	s.apps[appName] = app
	return app
}

// AddSession stores the entries of one session, replacing any earlier
// ingestion of the same session.
func (s *MemoryService) AddSession(ctx context.Context, key memory.Key, entries []memory.Entry) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}

	if limit := s.opts.entryLimit; limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	stored := make([]memory.Entry, len(entries))
	copy(stored, entries)

	app := s.getAppMemories(key.AppName)
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.users[key.UserID] == nil {
		app.users[key.UserID] = make(map[string][]memory.Entry)
	}
	app.users[key.UserID][key.SessionID] = stored
	return nil
}

// Search scans the user's remembered sessions for entries whose text matches
// the query. Results come back newest first.
func (s *MemoryService) Search(ctx context.Context, userKey memory.UserKey, query string) ([]memory.Entry, error) {
	if err := userKey.CheckUserKey(); err != nil {
		return nil, err
	}

	tokens := match.Tokens(query)

	app := s.getAppMemories(userKey.AppName)
	app.mu.RLock()
	defer app.mu.RUnlock()

	var results []memory.Entry
	for _, entries := range app.users[userKey.UserID] {
		for _, entry := range entries {
			if match.Matches(entry.Content.Text(), query, tokens) {
				results = append(results, entry)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	return results, nil
}
