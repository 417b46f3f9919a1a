//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package artifact defines named, versioned binary data attached to a
// session or a user, and the service interface that stores it.
package artifact

// Artifact is one piece of binary content, such as an image, a document, or
// a generated file.
type Artifact struct {
	// Data contains the raw bytes.
	Data []byte `json:"data,omitempty"`
	// MimeType is the IANA MIME type of Data.
	MimeType string `json:"mime_type,omitempty"`
	// URL is an optional location where the artifact can be fetched.
	URL string `json:"url,omitempty"`
	// Name is an optional display name.
	Name string `json:"name,omitempty"`
}

// SessionInfo identifies the session an artifact operation applies to.
type SessionInfo struct {
	// AppName is the name of the application.
	AppName string
	// UserID is the ID of the user.
	UserID string
	// SessionID is the ID of the session.
	SessionID string
}
