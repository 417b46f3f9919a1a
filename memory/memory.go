//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package memory provides long-term conversational memory for agents.
package memory

import (
	"context"
	"errors"
	"time"

	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

var (
	// ErrAppNameRequired is the error for app name required.
	ErrAppNameRequired = errors.New("appName is required")
	// ErrUserIDRequired is the error for user id required.
	ErrUserIDRequired = errors.New("userID is required")
	// ErrSessionIDRequired is the error for session id required.
	ErrSessionIDRequired = errors.New("sessionID is required")
)

// Entry is one remembered piece of a conversation.
type Entry struct {
	Content   model.Content `json:"content"`             // Content is the remembered content.
	Author    string        `json:"author"`              // Author is who produced the content.
	Timestamp time.Time     `json:"timestamp,omitempty"` // Timestamp is when the content was produced.
}

// Key identifies the session a batch of entries came from.
type Key struct {
	AppName   string // AppName is the name of the application.
	UserID    string // UserID is the unique identifier of the user.
	SessionID string // SessionID is the session the entries came from.
}

// CheckSessionKey checks if the session key is valid.
func (k Key) CheckSessionKey() error {
	if err := checkUserKey(k.AppName, k.UserID); err != nil {
		return err
	}
	if k.SessionID == "" {
		return ErrSessionIDRequired
	}
	return nil
}

// UserKey scopes searches to one user of an app.
type UserKey struct {
	AppName string // AppName is the name of the application.
	UserID  string // UserID is the unique identifier of the user.
}

// CheckUserKey checks if the user key is valid.
func (k UserKey) CheckUserKey() error {
	return checkUserKey(k.AppName, k.UserID)
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

// Service ingests finished sessions and answers searches over what users said
// and were told in past conversations.
type Service interface {
	// AddSession stores the entries of one session. Ingesting the same
	// session again replaces its previous entries.
	AddSession(ctx context.Context, key Key, entries []Entry) error

	// Search returns remembered entries relevant to the query, newest first.
	Search(ctx context.Context, userKey UserKey, query string) ([]Entry, error)
}

// EntriesFromSession converts a session's committed events into memory
// entries. Partial chunks and events without recordable content are skipped.
func EntriesFromSession(sess *session.Session) []Entry {
	if sess == nil {
		return nil
	}
	entries := make([]Entry, 0, len(sess.Events))
	for i := range sess.Events {
		evt := &sess.Events[i]
		if evt.Response == nil || evt.Response.Partial || !evt.Response.IsValidContent() {
			continue
		}
		entries = append(entries, Entry{
			Content:   *evt.Response.Content.Clone(),
			Author:    evt.Author,
			Timestamp: evt.Timestamp,
		})
	}
	return entries
}
