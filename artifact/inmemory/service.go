//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory artifact service for testing and
// development.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-adk-go/artifact"
	iartifact "trpc.group/trpc-go/trpc-adk-go/internal/artifact"
)

// Service keeps artifacts in process memory. Versions of one artifact are
// the slice indices under its path.
type Service struct {
	mutex     sync.RWMutex
	artifacts map[string][]*artifact.Artifact
}

var _ artifact.Service = (*Service)(nil)

// NewService creates an empty in-memory artifact service.
func NewService() *Service {
	return &Service{
		artifacts: make(map[string][]*artifact.Artifact),
	}
}

// SaveArtifact implements artifact.Service.
func (s *Service) SaveArtifact(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
	art *artifact.Artifact,
) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	path := iartifact.BuildArtifactPath(sessionInfo, filename)
	version := len(s.artifacts[path])
	s.artifacts[path] = append(s.artifacts[path], art)
	return version, nil
}

// LoadArtifact implements artifact.Service.
func (s *Service) LoadArtifact(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
	version *int,
) (*artifact.Artifact, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	path := iartifact.BuildArtifactPath(sessionInfo, filename)
	versions := s.artifacts[path]
	if len(versions) == 0 {
		return nil, nil
	}

	index := len(versions) - 1
	if version != nil {
		index = *version
		if index < 0 || index >= len(versions) {
			return nil, fmt.Errorf("version %d does not exist", *version)
		}
	}
	return versions[index], nil
}

// ListArtifactKeys implements artifact.Service.
func (s *Service) ListArtifactKeys(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sessionPrefix := iartifact.BuildSessionPrefix(sessionInfo)
	userPrefix := iartifact.BuildUserNamespacePrefix(sessionInfo)

	var filenames []string
	for path := range s.artifacts {
		if strings.HasPrefix(path, sessionPrefix) {
			filenames = append(filenames, strings.TrimPrefix(path, sessionPrefix))
		} else if strings.HasPrefix(path, userPrefix) {
			filenames = append(filenames, strings.TrimPrefix(path, userPrefix))
		}
	}
	sort.Strings(filenames)
	return filenames, nil
}

// DeleteArtifact implements artifact.Service. Deleting a missing artifact is
// a no-op.
func (s *Service) DeleteArtifact(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.artifacts, iartifact.BuildArtifactPath(sessionInfo, filename))
	return nil
}

// ListVersions implements artifact.Service.
func (s *Service) ListVersions(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
) ([]int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	path := iartifact.BuildArtifactPath(sessionInfo, filename)
	versions := make([]int, len(s.artifacts[path]))
	for i := range versions {
		versions[i] = i
	}
	return versions, nil
}
