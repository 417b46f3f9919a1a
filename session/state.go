//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package session

import "sync"

// State is the mutable working copy of a session's state during an
// invocation. It is safe for concurrent use; parallel agent branches read
// and write it through the invocation.
//
// Mutations to a State are local until an event carrying the matching
// StateDelta is committed through Service.AppendEvent.
type State struct {
	mu   sync.RWMutex
	data StateMap
}

// NewState creates a working state seeded from the given map.
// The seed is copied, not retained.
func NewState(seed StateMap) *State {
	s := &State{data: make(StateMap, len(seed))}
	for k, v := range seed {
		s.data[k] = cloneBytes(v)
	}
	return s
}

// Get returns the value for key and whether it is present.
func (s *State) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return cloneBytes(v), true
}

// Set stores value under key.
func (s *State) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = cloneBytes(value)
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// All returns a snapshot of the state.
func (s *State) All() StateMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(StateMap, len(s.data))
	for k, v := range s.data {
		out[k] = cloneBytes(v)
	}
	return out
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	return NewState(s.All())
}

// ApplyDelta applies each entry of delta to the state.
func (s *State) ApplyDelta(delta map[string][]byte) {
	if len(delta) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.data[k] = cloneBytes(v)
	}
}

// Len returns the number of keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
