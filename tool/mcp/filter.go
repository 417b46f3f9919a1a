//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package mcp

import (
	"context"
	"regexp"

	"trpc.group/trpc-go/trpc-adk-go/log"
)

// ToolFilter selects which server tools a ToolSet exposes.
type ToolFilter interface {
	Filter(ctx context.Context, tools []ToolInfo) []ToolInfo
}

// ToolInfo is the metadata a filter can match on.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolFilterFunc adapts a function to the ToolFilter interface.
type ToolFilterFunc func(ctx context.Context, tools []ToolInfo) []ToolInfo

// Filter implements ToolFilter.
func (f ToolFilterFunc) Filter(ctx context.Context, tools []ToolInfo) []ToolInfo {
	return f(ctx, tools)
}

type filterMode int

const (
	modeInclude filterMode = iota
	modeExclude
)

// nameFilter keeps or drops tools by exact name.
type nameFilter struct {
	names map[string]struct{}
	mode  filterMode
}

// NewIncludeFilter keeps only the named tools.
func NewIncludeFilter(names ...string) ToolFilter {
	return newNameFilter(modeInclude, names)
}

// NewExcludeFilter drops the named tools and keeps the rest.
func NewExcludeFilter(names ...string) ToolFilter {
	return newNameFilter(modeExclude, names)
}

func newNameFilter(mode filterMode, names []string) *nameFilter {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return &nameFilter{names: set, mode: mode}
}

// Filter implements ToolFilter.
func (f *nameFilter) Filter(ctx context.Context, tools []ToolInfo) []ToolInfo {
	if len(f.names) == 0 {
		return tools
	}
	var kept []ToolInfo
	for _, t := range tools {
		_, listed := f.names[t.Name]
		if listed == (f.mode == modeInclude) {
			kept = append(kept, t)
		}
	}
	return kept
}

// patternFilter matches tool names against precompiled regular expressions.
type patternFilter struct {
	patterns []*regexp.Regexp
	mode     filterMode
}

// NewPatternIncludeFilter keeps tools whose name matches any pattern.
// Invalid patterns are logged and skipped.
func NewPatternIncludeFilter(patterns ...string) ToolFilter {
	return newPatternFilter(modeInclude, patterns)
}

// NewPatternExcludeFilter drops tools whose name matches any pattern.
// Invalid patterns are logged and skipped.
func NewPatternExcludeFilter(patterns ...string) ToolFilter {
	return newPatternFilter(modeExclude, patterns)
}

func newPatternFilter(mode filterMode, patterns []string) *patternFilter {
	f := &patternFilter{mode: mode}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warnf("mcp tool filter: invalid pattern %q: %v", p, err)
			continue
		}
		f.patterns = append(f.patterns, re)
	}
	return f
}

// Filter implements ToolFilter.
func (f *patternFilter) Filter(ctx context.Context, tools []ToolInfo) []ToolInfo {
	if len(f.patterns) == 0 {
		return tools
	}
	var kept []ToolInfo
	for _, t := range tools {
		if f.matches(t.Name) == (f.mode == modeInclude) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (f *patternFilter) matches(name string) bool {
	for _, re := range f.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// compositeFilter applies filters in order, narrowing at each step.
type compositeFilter struct {
	filters []ToolFilter
}

// NewCompositeFilter chains filters with AND semantics.
func NewCompositeFilter(filters ...ToolFilter) ToolFilter {
	return &compositeFilter{filters: filters}
}

// Filter implements ToolFilter.
func (f *compositeFilter) Filter(ctx context.Context, tools []ToolInfo) []ToolInfo {
	result := tools
	for _, filter := range f.filters {
		result = filter.Filter(ctx, result)
	}
	return result
}
