//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"
	"errors"

	"trpc.group/trpc-go/trpc-adk-go/artifact"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

// ErrNoInvocation is returned when a callback context is requested outside a
// running invocation.
var ErrNoInvocation = errors.New("no invocation in context")

// CallbackContext gives callbacks and tools structured access to the running
// invocation: its state plus artifact operations scoped to the session.
type CallbackContext struct {
	context.Context
	invocation *Invocation
}

// NewCallbackContext builds a callback context from ctx. It fails with
// ErrNoInvocation when ctx does not carry an invocation.
func NewCallbackContext(ctx context.Context) (*CallbackContext, error) {
	invocation, ok := InvocationFromContext(ctx)
	if !ok || invocation == nil {
		return nil, ErrNoInvocation
	}
	return &CallbackContext{Context: ctx, invocation: invocation}, nil
}

// Invocation returns the running invocation.
func (c *CallbackContext) Invocation() *Invocation {
	return c.invocation
}

// State returns the invocation's working state.
func (c *CallbackContext) State() *session.State {
	return c.invocation.State
}

// SaveArtifact stores an artifact under filename and returns its version.
func (c *CallbackContext) SaveArtifact(filename string, a *artifact.Artifact) (int, error) {
	svc, info, err := c.artifactScope()
	if err != nil {
		return 0, err
	}
	return svc.SaveArtifact(c.Context, info, filename, a)
}

// LoadArtifact loads an artifact by filename. A nil version loads the latest.
func (c *CallbackContext) LoadArtifact(filename string, version *int) (*artifact.Artifact, error) {
	svc, info, err := c.artifactScope()
	if err != nil {
		return nil, err
	}
	return svc.LoadArtifact(c.Context, info, filename, version)
}

// ListArtifacts lists the artifact filenames visible to this session.
func (c *CallbackContext) ListArtifacts() ([]string, error) {
	svc, info, err := c.artifactScope()
	if err != nil {
		return nil, err
	}
	return svc.ListArtifactKeys(c.Context, info)
}

// DeleteArtifact deletes an artifact by filename.
func (c *CallbackContext) DeleteArtifact(filename string) error {
	svc, info, err := c.artifactScope()
	if err != nil {
		return err
	}
	return svc.DeleteArtifact(c.Context, info, filename)
}

// ListArtifactVersions lists the stored versions of an artifact.
func (c *CallbackContext) ListArtifactVersions(filename string) ([]int, error) {
	svc, info, err := c.artifactScope()
	if err != nil {
		return nil, err
	}
	return svc.ListVersions(c.Context, info, filename)
}

func (c *CallbackContext) artifactScope() (artifact.Service, artifact.SessionInfo, error) {
	inv := c.invocation
	if inv.ArtifactService == nil {
		return nil, artifact.SessionInfo{}, errors.New("artifact service is not configured")
	}
	if inv.Session == nil {
		return nil, artifact.SessionInfo{}, errors.New("artifact operations need a session")
	}
	info := artifact.SessionInfo{
		AppName:   inv.Session.AppName,
		UserID:    inv.Session.UserID,
		SessionID: inv.Session.ID,
	}
	if info.AppName == "" || info.UserID == "" || info.SessionID == "" {
		return nil, artifact.SessionInfo{}, errors.New("session is missing app name, user id, or session id")
	}
	return inv.ArtifactService, info, nil
}
