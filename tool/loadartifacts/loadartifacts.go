//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package loadartifacts provides the built-in tool that exposes session
// artifacts to the model.
package loadartifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/artifact"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// ToolName is the declared name of the load-artifacts tool.
const ToolName = "load_artifacts"

// Request is the argument object of a load_artifacts call.
type Request struct {
	// ArtifactNames selects the artifacts to load. Empty means list only.
	ArtifactNames []string `json:"artifact_names,omitempty"`
}

// Response carries the artifact listing and any loaded contents.
type Response struct {
	// ArtifactNames lists every artifact available to the session.
	ArtifactNames []string `json:"artifact_names"`
	// Artifacts maps each loaded name to its latest content.
	Artifacts map[string]Artifact `json:"artifacts,omitempty"`
	// Missing lists requested names that do not exist.
	Missing []string `json:"missing,omitempty"`
}

// Artifact is one loaded artifact in a load_artifacts response. Textual
// content arrives in Text, everything else base64-encoded in Data.
type Artifact struct {
	MimeType string `json:"mime_type,omitempty"`
	Text     string `json:"text,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Tool implements the load_artifacts tool over the invocation's artifact
// service.
type Tool struct{}

var _ tool.CallableTool = (*Tool)(nil)

// New creates the load-artifacts tool.
func New() *Tool {
	return &Tool{}
}

// Declaration implements the tool.Tool interface.
func (t *Tool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: ToolName,
		Description: "Loads artifacts attached to the current session into the conversation. " +
			"Call without names to list the available artifacts, then call again with the names to load.",
		InputSchema: &tool.Schema{
			Type: "object",
			Properties: map[string]*tool.Schema{
				"artifact_names": {
					Type:        "array",
					Items:       &tool.Schema{Type: "string"},
					Description: "Names of the artifacts to load. Leave empty to list the available artifacts.",
				},
			},
		},
	}
}

// Call implements the tool.CallableTool interface. Without names the reply
// is the listing; with names each existing artifact's latest version joins
// the reply.
func (t *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	invocation, ok := agent.InvocationFromContext(ctx)
	if !ok || invocation == nil || invocation.Session == nil {
		return nil, tool.NewError(ToolName, "no session in scope", nil)
	}
	service := invocation.ArtifactService
	if service == nil {
		return nil, tool.NewError(ToolName, "no artifact service configured", nil)
	}
	info := artifact.SessionInfo{
		AppName:   invocation.Session.AppName,
		UserID:    invocation.Session.UserID,
		SessionID: invocation.Session.ID,
	}

	var req Request
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &req); err != nil {
			return nil, tool.NewError(ToolName, "invalid request", err)
		}
	}

	available, err := service.ListArtifactKeys(ctx, info)
	if err != nil {
		return nil, tool.NewError(ToolName, "list artifacts", err)
	}
	rsp := Response{ArtifactNames: available}
	if len(req.ArtifactNames) == 0 {
		return rsp, nil
	}

	rsp.Artifacts = make(map[string]Artifact, len(req.ArtifactNames))
	for _, name := range req.ArtifactNames {
		art, err := service.LoadArtifact(ctx, info, name, nil)
		if err != nil {
			return nil, tool.NewError(ToolName, fmt.Sprintf("load artifact %s", name), err)
		}
		if art == nil {
			rsp.Missing = append(rsp.Missing, name)
			continue
		}
		rsp.Artifacts[name] = toResponseArtifact(art)
	}
	return rsp, nil
}

func toResponseArtifact(art *artifact.Artifact) Artifact {
	loaded := Artifact{MimeType: art.MimeType}
	if isTextual(art.MimeType) {
		loaded.Text = string(art.Data)
	} else {
		loaded.Data = art.Data
	}
	return loaded
}

func isTextual(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/yaml":
		return true
	}
	return false
}
