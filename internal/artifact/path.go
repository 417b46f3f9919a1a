//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package artifact builds the storage paths shared by the artifact service
// implementations.
package artifact

import (
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/artifact"
)

// userNamespacePrefix marks filenames scoped to the user instead of the
// session.
const userNamespacePrefix = "user:"

// FileHasUserNamespace reports whether the filename is user-scoped.
func FileHasUserNamespace(filename string) bool {
	return strings.HasPrefix(filename, userNamespacePrefix)
}

// BuildArtifactPath constructs the storage path of an artifact:
// {app}/{user}/user/{filename} for user-scoped files,
// {app}/{user}/{session}/{filename} for session-scoped ones.
func BuildArtifactPath(sessionInfo artifact.SessionInfo, filename string) string {
	if FileHasUserNamespace(filename) {
		return fmt.Sprintf("%s/%s/user/%s", sessionInfo.AppName, sessionInfo.UserID, filename)
	}
	return fmt.Sprintf("%s/%s/%s/%s", sessionInfo.AppName, sessionInfo.UserID, sessionInfo.SessionID, filename)
}

// BuildObjectName constructs the object name of one artifact version for
// stores that keep each version as its own object, like COS. The version
// number is the last path segment.
func BuildObjectName(sessionInfo artifact.SessionInfo, filename string, version int) string {
	return fmt.Sprintf("%s%d", BuildObjectNamePrefix(sessionInfo, filename), version)
}

// BuildObjectNamePrefix constructs the object name prefix listing all
// versions of one artifact.
func BuildObjectNamePrefix(sessionInfo artifact.SessionInfo, filename string) string {
	return BuildArtifactPath(sessionInfo, filename) + "/"
}

// BuildSessionPrefix constructs the prefix of the session-scoped artifacts.
func BuildSessionPrefix(sessionInfo artifact.SessionInfo) string {
	return fmt.Sprintf("%s/%s/%s/", sessionInfo.AppName, sessionInfo.UserID, sessionInfo.SessionID)
}

// BuildUserNamespacePrefix constructs the prefix of the user-scoped
// artifacts.
func BuildUserNamespacePrefix(sessionInfo artifact.SessionInfo) string {
	return fmt.Sprintf("%s/%s/user/", sessionInfo.AppName, sessionInfo.UserID)
}
