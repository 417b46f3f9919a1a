//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package artifact

import "context"

// Service stores and retrieves versioned artifacts.
//
// Artifacts are keyed by session info and filename. A filename starting with
// "user:" is scoped to the user and shared across that user's sessions;
// every other filename is scoped to the session.
type Service interface {
	// SaveArtifact stores a new version of the artifact and returns its
	// revision ID. The first version of an artifact has revision 0; each
	// successful save increments it by 1.
	SaveArtifact(ctx context.Context, sessionInfo SessionInfo, filename string, artifact *Artifact) (int, error)

	// LoadArtifact returns the requested version of the artifact, or the
	// latest when version is nil. A missing artifact yields (nil, nil).
	LoadArtifact(ctx context.Context, sessionInfo SessionInfo, filename string, version *int) (*Artifact, error)

	// ListArtifactKeys lists the filenames visible within the session,
	// including the user-scoped ones.
	ListArtifactKeys(ctx context.Context, sessionInfo SessionInfo) ([]string, error)

	// DeleteArtifact removes the artifact with all its versions. Deleting a
	// missing artifact is not an error.
	DeleteArtifact(ctx context.Context, sessionInfo SessionInfo, filename string) error

	// ListVersions lists the stored versions of the artifact in ascending
	// order.
	ListVersions(ctx context.Context, sessionInfo SessionInfo, filename string) ([]int, error)
}
