//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package session provides the core session functionality.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-adk-go/event"
)

// StateMap is a map of state key-value pairs. Values are JSON-encoded.
type StateMap map[string][]byte

// State key prefixes select the persistence scope of a key.
const (
	// StateAppPrefix scopes a key to the application, shared by every user.
	StateAppPrefix = "app:"
	// StateUserPrefix scopes a key to one user across all their sessions.
	StateUserPrefix = "user:"
	// StateTempPrefix scopes a key to the current invocation; never persisted.
	StateTempPrefix = "temp:"
)

var (
	// ErrAppNameRequired is the error for app name required.
	ErrAppNameRequired = errors.New("appName is required")
	// ErrUserIDRequired is the error for user id required.
	ErrUserIDRequired = errors.New("userID is required")
	// ErrSessionIDRequired is the error for session id required.
	ErrSessionIDRequired = errors.New("sessionID is required")
	// ErrSessionNotFound is returned when the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionAlreadyExists is returned when creating a session with an ID
	// that is already taken.
	ErrSessionAlreadyExists = errors.New("session already exists")
)

// Session is one conversation thread owned by a session service.
// Services hand out deep copies; callers never share the stored instance.
type Session struct {
	ID        string        `json:"id"`        // ID is the session id.
	AppName   string        `json:"appName"`   // AppName is the app name.
	UserID    string        `json:"userID"`    // UserID is the user id.
	State     StateMap      `json:"state"`     // State is the merged state view (app/user keys re-prefixed).
	Events    []event.Event `json:"events"`    // Events is the committed event history.
	UpdatedAt time.Time     `json:"updatedAt"` // UpdatedAt is the last update time.
	CreatedAt time.Time     `json:"createdAt"` // CreatedAt is the creation time.
}

// Options is the options for getting a session.
type Options struct {
	EventNum  int       // EventNum is the number of recent events.
	EventTime time.Time // EventTime is the after time.
}

// Option is the option for a session.
type Option func(*Options)

// WithEventNum is the option for the number of recent events.
func WithEventNum(num int) Option {
	return func(o *Options) {
		o.EventNum = num
	}
}

// WithEventTime is the option for the time of the recent events.
func WithEventTime(time time.Time) Option {
	return func(o *Options) {
		o.EventTime = time
	}
}

// Service is the interface that all session services must implement.
//
// Implementations must serialize AppendEvent calls per session: two commits
// against the same session never interleave, and each commit is atomic
// (event append plus state routing happen together or not at all).
type Service interface {
	// CreateSession creates a new session. An empty SessionID in the key asks
	// the service to generate one. Creating an explicit ID that already
	// exists fails with ErrSessionAlreadyExists.
	CreateSession(ctx context.Context, key Key, state StateMap, options ...Option) (*Session, error)

	// GetSession gets a session. A missing session fails with
	// ErrSessionNotFound.
	GetSession(ctx context.Context, key Key, options ...Option) (*Session, error)

	// ListSessions lists all sessions by user scope of session key.
	ListSessions(ctx context.Context, userKey UserKey, options ...Option) ([]*Session, error)

	// DeleteSession deletes a session. A missing session fails with
	// ErrSessionNotFound.
	DeleteSession(ctx context.Context, key Key, options ...Option) error

	// AppendEvent commits an event to a session: the event is appended to the
	// history and its StateDelta is routed by key prefix (app:, user:,
	// session-scoped; temp: keys are dropped).
	AppendEvent(ctx context.Context, session *Session, event *event.Event, options ...Option) error

	// UpdateAppState updates app-scoped state. Keys may carry the app: prefix.
	UpdateAppState(ctx context.Context, appName string, state StateMap) error

	// DeleteAppState deletes one app-scoped key.
	DeleteAppState(ctx context.Context, appName string, key string) error

	// ListAppStates gets the app-scoped state.
	ListAppStates(ctx context.Context, appName string) (StateMap, error)

	// UpdateUserState updates user-scoped state. Keys may carry the user: prefix.
	UpdateUserState(ctx context.Context, userKey UserKey, state StateMap) error

	// ListUserStates gets the user-scoped state.
	ListUserStates(ctx context.Context, userKey UserKey) (StateMap, error)

	// DeleteUserState deletes one user-scoped key.
	DeleteUserState(ctx context.Context, userKey UserKey, key string) error

	// Close closes the service.
	Close() error
}

// Key is the key for a session.
type Key struct {
	AppName   string // app name
	UserID    string // user id
	SessionID string // session id
}

// CheckSessionKey checks if a session key is valid.
func (s *Key) CheckSessionKey() error {
	return checkSessionKey(s.AppName, s.UserID, s.SessionID)
}

// CheckUserKey checks if a user key is valid.
func (s *Key) CheckUserKey() error {
	return checkUserKey(s.AppName, s.UserID)
}

// UserKey is the key for a user.
type UserKey struct {
	AppName string // app name
	UserID  string // user id
}

// CheckUserKey checks if a user key is valid.
func (s *UserKey) CheckUserKey() error {
	return checkUserKey(s.AppName, s.UserID)
}

func checkSessionKey(appName, userID, sessionID string) error {
	if appName == "" {
		return ErrAppNameRequired
	}
	if userID == "" {
		return ErrUserIDRequired
	}
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	return nil
}

func checkUserKey(appName, userID string) error {
	if appName == "" {
		return ErrAppNameRequired
	}
	if userID == "" {
		return ErrUserIDRequired
	}
	return nil
}

// IsTempKey reports whether the key is invocation-scoped.
func IsTempKey(key string) bool {
	return strings.HasPrefix(key, StateTempPrefix)
}
