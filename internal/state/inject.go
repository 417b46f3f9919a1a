//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package state provides placeholder injection of working state into
// instruction templates.
package state

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/session"
)

// mustachePlaceholderRE matches Mustache-style placeholders like {{key}},
// optionally with a scope prefix (user:, app:, temp:) and the optional
// suffix '?'. The allowed characters are restricted to avoid rewriting
// braces in free text.
var mustachePlaceholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*:(?:[A-Za-z_][A-Za-z0-9_]*)|[A-Za-z_][A-Za-z0-9_]*)(\?)?\s*\}\}`)

// placeholderRE matches the native single-brace placeholder form.
var placeholderRE = regexp.MustCompile(`\{([^{}]+)\}`)

// Inject replaces {key} placeholders in the template with values from the
// working state. {key?} marks the placeholder optional: it becomes the empty
// string when the key is absent. A missing non-optional key keeps the
// placeholder verbatim so the model sees what was unresolved. Values are
// JSON-decoded when possible, otherwise used as raw text.
func Inject(template string, st *session.State) string {
	if template == "" {
		return template
	}

	// Normalize {{key}} into the native single-brace form first.
	template = mustachePlaceholderRE.ReplaceAllString(template, `{$1$2}`)

	return placeholderRE.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.Trim(match, "{}")

		optional := strings.HasSuffix(name, "?")
		if optional {
			name = strings.TrimSuffix(name, "?")
		}

		if !isValidStateName(name) {
			return match
		}

		if st != nil {
			if raw, ok := st.Get(name); ok {
				var decoded any
				if err := json.Unmarshal(raw, &decoded); err == nil {
					return fmt.Sprintf("%v", decoded)
				}
				return string(raw)
			}
		}

		if optional {
			return ""
		}
		return match
	})
}

// isValidStateName accepts identifiers, optionally scoped by one of the
// session state prefixes.
func isValidStateName(name string) bool {
	if name == "" {
		return false
	}
	if isIdentifier(name) {
		return true
	}
	parts := strings.SplitN(name, ":", 2)
	if len(parts) != 2 {
		return false
	}
	switch parts[0] + ":" {
	case session.StateAppPrefix, session.StateUserPrefix, session.StateTempPrefix:
		return isIdentifier(parts[1])
	default:
		return false
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}
