//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package debug

import (
	"encoding/base64"
	"encoding/json"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/server/debug/internal/schema"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

// Event payload JSON keys.
const (
	keyText             = "text"
	keyFunctionCall     = "functionCall"
	keyFunctionResponse = "functionResponse"
	keyInlineData       = "inlineData"
)

// toModelContent converts an incoming wire message into model content.
// Unknown-empty parts and undecodable inline data are dropped.
func toModelContent(c schema.Content) model.Content {
	content := model.Content{Role: c.Role}
	if content.Role == "" {
		content.Role = model.RoleUser
	}
	for _, p := range c.Parts {
		switch {
		case p.FunctionCall != nil:
			args, _ := json.Marshal(p.FunctionCall.Args)
			content.Parts = append(content.Parts,
				model.NewFunctionCallPart(p.FunctionCall.ID, p.FunctionCall.Name, args))
		case p.FunctionResponse != nil:
			rsp, _ := json.Marshal(p.FunctionResponse.Response)
			content.Parts = append(content.Parts,
				model.NewFunctionResponsePart(p.FunctionResponse.ID, p.FunctionResponse.Name, rsp))
		case p.InlineData != nil:
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				log.Warnf("debug server: drop inline data part: %v", err)
				continue
			}
			content.Parts = append(content.Parts,
				model.NewInlineDataPart(p.InlineData.MimeType, data))
		case p.Text != "":
			content.Parts = append(content.Parts, model.NewTextPart(p.Text))
		}
	}
	return content
}

// convertSession flattens a session for the UI, with the committed history
// already converted to event payloads.
func convertSession(sess *session.Session) schema.Session {
	events := make([]map[string]any, 0, len(sess.Events))
	for i := range sess.Events {
		if ev := convertEvent(&sess.Events[i], false); ev != nil {
			events = append(events, ev)
		}
	}
	return schema.Session{
		AppName:    sess.AppName,
		UserID:     sess.UserID,
		ID:         sess.ID,
		CreateTime: sess.CreatedAt.UnixMilli(),
		UpdateTime: sess.UpdatedAt.UnixMilli(),
		State:      decodeStateValues(sess.State),
		Events:     events,
	}
}

// convertEvent renders an event as the payload the UI expects, or nil for
// events with nothing to show. Partial chunks pass only in streaming mode.
func convertEvent(e *event.Event, streaming bool) map[string]any {
	if e == nil || e.Response == nil {
		return nil
	}
	rsp := e.Response
	if rsp.Partial && !streaming {
		return nil
	}

	var parts []map[string]any
	if rsp.Error != nil {
		parts = []map[string]any{{keyText: "Error: " + rsp.Error.Message}}
	} else {
		parts = convertParts(rsp.Content)
	}
	if len(parts) == 0 {
		return nil
	}

	role := e.Author
	if rsp.Content != nil && rsp.Content.Role != "" {
		role = rsp.Content.Role
	}

	adkEvent := map[string]any{
		"id":           e.ID,
		"invocationId": e.InvocationID,
		"author":       e.Author,
		"timestamp":    e.Timestamp.UnixMilli(),
		"content":      map[string]any{"role": role, "parts": parts},
		"actions":      convertActions(e),
		"done":         rsp.TurnComplete,
		"partial":      rsp.Partial,
	}
	if rsp.Object != "" {
		adkEvent["object"] = rsp.Object
	}
	if rsp.Model != "" {
		adkEvent["model"] = rsp.Model
	}
	if rsp.Error != nil {
		adkEvent["errorMessage"] = rsp.Error.Message
	}
	if rsp.Usage != nil {
		adkEvent["usageMetadata"] = map[string]any{
			"promptTokenCount":     rsp.Usage.PromptTokens,
			"candidatesTokenCount": rsp.Usage.CompletionTokens,
			"totalTokenCount":      rsp.Usage.TotalTokens,
		}
	}
	return adkEvent
}

func convertParts(content *model.Content) []map[string]any {
	if content == nil {
		return nil
	}
	var parts []map[string]any
	for _, p := range content.Parts {
		switch {
		case p.FunctionCall != nil:
			parts = append(parts, map[string]any{keyFunctionCall: map[string]any{
				"id":   p.FunctionCall.ID,
				"name": p.FunctionCall.Name,
				"args": decodeJSON(p.FunctionCall.Arguments),
			}})
		case p.FunctionResponse != nil:
			parts = append(parts, map[string]any{keyFunctionResponse: map[string]any{
				"id":       p.FunctionResponse.ID,
				"name":     p.FunctionResponse.Name,
				"response": decodeJSON(p.FunctionResponse.Response),
			}})
		case p.InlineData != nil:
			parts = append(parts, map[string]any{keyInlineData: map[string]any{
				"mimeType": p.InlineData.MIMEType,
				"data":     base64.StdEncoding.EncodeToString(p.InlineData.Data),
			}})
		case p.Text != "":
			parts = append(parts, map[string]any{keyText: p.Text})
		}
	}
	return parts
}

func convertActions(e *event.Event) map[string]any {
	actions := map[string]any{
		"stateDelta":           decodeStateValues(e.StateDelta),
		"artifactDelta":        map[string]any{},
		"requestedAuthConfigs": map[string]any{},
	}
	if e.Actions != nil {
		if e.Actions.TransferToAgent != "" {
			actions["transferToAgent"] = e.Actions.TransferToAgent
		}
		if e.Actions.Escalate {
			actions["escalate"] = true
		}
		if e.Actions.SkipSummarization {
			actions["skipSummarization"] = true
		}
	}
	return actions
}

// isAggregatedText reports whether the response is the aggregated text of a
// model turn, the shape whose content also went out as streamed chunks.
func isAggregatedText(rsp *model.Response) bool {
	return rsp.Object == model.ObjectTypeChatCompletion && !rsp.Partial &&
		len(rsp.Content.FunctionCalls()) == 0 && rsp.Content.Text() != ""
}

// decodeStateValues renders JSON state values as objects, falling back to
// the raw string for values that are not valid JSON.
func decodeStateValues(values map[string][]byte) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = decodeJSON(v)
	}
	return out
}

// decodeJSON decodes raw JSON for re-encoding inside a payload; bytes that
// are not valid JSON pass through as a string.
func decodeJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
