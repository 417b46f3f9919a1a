//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package cos implements the artifact service on Tencent Cloud Object
// Storage. Each artifact version is stored as its own object named
// {app}/{user}/{session}/{filename}/{version}, with user-scoped filenames
// replacing the session segment by "user".
//
// Credentials come from the COS_SECRETID and COS_SECRETKEY environment
// variables, or from the WithSecretID and WithSecretKey options:
//
//	service, err := cos.NewService("https://bucket.cos.region.myqcloud.com")
package cos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"

	"trpc.group/trpc-go/trpc-adk-go/artifact"
	iartifact "trpc.group/trpc-go/trpc-adk-go/internal/artifact"
)

const defaultTimeout = 60 * time.Second

// Service is a COS-backed artifact service.
type Service struct {
	cosClient client
}

var _ artifact.Service = (*Service)(nil)

// NewService creates a COS artifact service for the given bucket URL.
func NewService(bucketURL string, opts ...Option) (*Service, error) {
	options := &options{
		timeout:   defaultTimeout,
		secretID:  os.Getenv("COS_SECRETID"),
		secretKey: os.Getenv("COS_SECRETKEY"),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.client != nil {
		return &Service{cosClient: options.client}, nil
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket URL: %w", err)
	}
	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &cos.AuthorizationTransport{
				SecretID:  options.secretID,
				SecretKey: options.secretKey,
			},
		}
	}
	if options.timeout > 0 {
		httpClient.Timeout = options.timeout
	}
	return &Service{
		cosClient: newCosClient(cos.NewClient(&cos.BaseURL{BucketURL: u}, httpClient)),
	}, nil
}

// SaveArtifact implements artifact.Service. The new version number is one
// past the highest stored version.
func (s *Service) SaveArtifact(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
	art *artifact.Artifact,
) (int, error) {
	versions, err := s.ListVersions(ctx, sessionInfo, filename)
	if err != nil {
		return 0, fmt.Errorf("list versions: %w", err)
	}
	version := 0
	if len(versions) > 0 {
		version = maxVersion(versions) + 1
	}

	objectName := iartifact.BuildObjectName(sessionInfo, filename, version)
	if err := s.cosClient.PutObject(ctx, objectName, bytes.NewReader(art.Data), art.MimeType); err != nil {
		return 0, fmt.Errorf("upload artifact: %w", err)
	}
	return version, nil
}

// LoadArtifact implements artifact.Service.
func (s *Service) LoadArtifact(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
	version *int,
) (*artifact.Artifact, error) {
	var targetVersion int
	if version == nil {
		versions, err := s.ListVersions(ctx, sessionInfo, filename)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		if len(versions) == 0 {
			return nil, nil
		}
		targetVersion = maxVersion(versions)
	} else {
		targetVersion = *version
	}

	objectName := iartifact.BuildObjectName(sessionInfo, filename, targetVersion)
	respBody, respHeader, err := s.cosClient.GetObject(ctx, objectName)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer respBody.Close()

	data, err := io.ReadAll(respBody)
	if err != nil {
		return nil, fmt.Errorf("read artifact data: %w", err)
	}
	contentType := respHeader.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &artifact.Artifact{
		Data:     data,
		MimeType: contentType,
		Name:     filename,
	}, nil
}

// ListArtifactKeys implements artifact.Service. Session-scoped and
// user-scoped objects are merged into one sorted list.
func (s *Service) ListArtifactKeys(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
) ([]string, error) {
	filenameSet := make(map[string]bool)
	prefixes := []string{
		iartifact.BuildSessionPrefix(sessionInfo),
		iartifact.BuildUserNamespacePrefix(sessionInfo),
	}
	for _, prefix := range prefixes {
		result, err := s.cosClient.GetBucket(ctx, prefix)
		if err != nil {
			if cos.IsNotFoundError(err) {
				continue
			}
			return nil, fmt.Errorf("list artifacts under %s: %w", prefix, err)
		}
		if result == nil {
			continue
		}
		for _, obj := range result.Contents {
			// The filename segment sits before the trailing version.
			parts := strings.Split(obj.Key, "/")
			if len(parts) >= 4 {
				filenameSet[parts[len(parts)-2]] = true
			}
		}
	}

	filenames := make([]string, 0, len(filenameSet))
	for filename := range filenameSet {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)
	return filenames, nil
}

// DeleteArtifact implements artifact.Service. All stored versions are
// removed; a missing artifact is a no-op.
func (s *Service) DeleteArtifact(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
) error {
	versions, err := s.ListVersions(ctx, sessionInfo, filename)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	for _, version := range versions {
		objectName := iartifact.BuildObjectName(sessionInfo, filename, version)
		if err := s.cosClient.DeleteObject(ctx, objectName); err != nil && !cos.IsNotFoundError(err) {
			return fmt.Errorf("delete artifact version %d: %w", version, err)
		}
	}
	return nil
}

// ListVersions implements artifact.Service.
func (s *Service) ListVersions(
	ctx context.Context,
	sessionInfo artifact.SessionInfo,
	filename string,
) ([]int, error) {
	prefix := iartifact.BuildObjectNamePrefix(sessionInfo, filename)
	result, err := s.cosClient.GetBucket(ctx, prefix)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("list versions: %w", err)
	}

	var versions []int
	for _, obj := range result.Contents {
		parts := strings.Split(obj.Key, "/")
		if len(parts) == 0 {
			continue
		}
		if version, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			versions = append(versions, version)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

func maxVersion(versions []int) int {
	max := versions[0]
	for _, v := range versions[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
