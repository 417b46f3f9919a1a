//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package guardrail provides content filtering and PII redaction for agent
// input and output.
package guardrail

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/model"
)

// Severity grades a guardrail failure.
type Severity int

// The zero value is unset; NewContentFilter substitutes SeverityHigh.
const (
	// SeverityLow marks cosmetic violations such as length limits.
	SeverityLow Severity = iota + 1
	// SeverityMedium marks violations that degrade the conversation.
	SeverityMedium
	// SeverityHigh marks violations that must not reach the model.
	SeverityHigh
	// SeverityCritical marks violations that must be reported.
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Failure describes a single guardrail violation.
type Failure struct {
	// Name identifies the guardrail that failed.
	Name string
	// Reason is a human-readable explanation.
	Reason string
	// Severity grades the violation.
	Severity Severity
}

// Result is the outcome of running a guardrail set over content.
type Result struct {
	// Passed is true when no filter reported a failure. Redaction alone
	// does not fail a run.
	Passed bool
	// TransformedContent is set when a redactor changed the content,
	// nil otherwise.
	TransformedContent *model.Content
	// Failures lists every violation in guardrail order.
	Failures []Failure
}

// Set is an ordered collection of guardrails. The zero value is usable.
type Set struct {
	filters   []*ContentFilter
	redactors []*PiiRedactor
}

// NewSet creates an empty guardrail set.
func NewSet() *Set {
	return &Set{}
}

// WithContentFilter appends a content filter.
func (s *Set) WithContentFilter(f *ContentFilter) *Set {
	s.filters = append(s.filters, f)
	return s
}

// WithPiiRedactor appends a PII redactor.
func (s *Set) WithPiiRedactor(r *PiiRedactor) *Set {
	s.redactors = append(s.redactors, r)
	return s
}

// Empty reports whether the set contains no guardrails.
func (s *Set) Empty() bool {
	return s == nil || (len(s.filters) == 0 && len(s.redactors) == 0)
}

// Run evaluates every guardrail in the set against the content. Filters run
// first over the joined text, then redactors rewrite each text part.
func Run(ctx context.Context, set *Set, content model.Content) (*Result, error) {
	result := &Result{Passed: true}
	if set.Empty() {
		return result, nil
	}

	text := content.Text()
	for _, f := range set.filters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if failure := f.Check(text); failure != nil {
			result.Failures = append(result.Failures, *failure)
		}
	}
	result.Passed = len(result.Failures) == 0

	transformed := false
	redacted := content.Clone()
	for _, r := range set.redactors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, part := range redacted.Parts {
			if part.Text == "" {
				continue
			}
			replaced, found := r.Redact(part.Text)
			if len(found) > 0 {
				redacted.Parts[i].Text = replaced
				transformed = true
			}
		}
	}
	if transformed {
		result.TransformedContent = redacted
	}
	return result, nil
}
