//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package guardrail

import (
	"fmt"
	"strings"
)

// harmfulPhrases are matched case-insensitively by the harmful-content
// preset. Multi-word phrases keep the false-positive rate down.
var harmfulPhrases = []string{
	"kill yourself",
	"how to make a bomb",
	"how to build a weapon",
	"hurt someone",
	"harm yourself",
	"violent attack",
}

// Config configures a custom content filter. Zero values disable the
// corresponding check.
type Config struct {
	// BlockedKeywords fail the filter when any appears in the text,
	// case-insensitively.
	BlockedKeywords []string
	// RequiredTopics fail the filter when none appears in the text.
	RequiredTopics []string
	// MaxLength is the maximum rune count, 0 for unlimited.
	MaxLength int
	// MinLength is the minimum rune count.
	MinLength int
	// Severity grades failures from this filter. Defaults to SeverityHigh.
	Severity Severity
}

// ContentFilter checks text against keyword, topic, and length rules.
type ContentFilter struct {
	name   string
	config Config
}

// NewContentFilter creates a filter with a custom configuration.
func NewContentFilter(name string, config Config) *ContentFilter {
	if config.Severity == 0 {
		config.Severity = SeverityHigh
	}
	return &ContentFilter{name: name, config: config}
}

// HarmfulContent creates a filter that blocks common harmful phrases.
func HarmfulContent() *ContentFilter {
	return NewContentFilter("harmful_content", Config{
		BlockedKeywords: harmfulPhrases,
		Severity:        SeverityCritical,
	})
}

// OnTopic creates a filter that requires at least one of the topic keywords
// to appear in the text.
func OnTopic(topic string, keywords []string) *ContentFilter {
	return NewContentFilter("on_topic_"+topic, Config{
		RequiredTopics: keywords,
		Severity:       SeverityMedium,
	})
}

// MaxLength creates a filter that rejects text longer than max runes.
func MaxLength(max int) *ContentFilter {
	return NewContentFilter("max_length", Config{
		MaxLength: max,
		Severity:  SeverityLow,
	})
}

// BlockedKeywords creates a filter that rejects text containing any of the
// keywords.
func BlockedKeywords(keywords []string) *ContentFilter {
	return NewContentFilter("blocked_keywords", Config{
		BlockedKeywords: keywords,
		Severity:        SeverityHigh,
	})
}

// Name returns the filter name used in failures.
func (f *ContentFilter) Name() string {
	return f.name
}

// Check evaluates the filter against text. Returns nil when the text passes,
// otherwise the first violation found.
func (f *ContentFilter) Check(text string) *Failure {
	severity := f.config.Severity
	lower := strings.ToLower(text)

	for _, kw := range f.config.BlockedKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return &Failure{
				Name:     f.name,
				Reason:   fmt.Sprintf("content contains blocked keyword %q", kw),
				Severity: severity,
			}
		}
	}

	if len(f.config.RequiredTopics) > 0 {
		found := false
		for _, topic := range f.config.RequiredTopics {
			if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
				found = true
				break
			}
		}
		if !found {
			return &Failure{
				Name:     f.name,
				Reason:   "content does not mention any required topic",
				Severity: severity,
			}
		}
	}

	length := len([]rune(text))
	if f.config.MaxLength > 0 && length > f.config.MaxLength {
		return &Failure{
			Name:     f.name,
			Reason:   fmt.Sprintf("content length %d exceeds maximum %d", length, f.config.MaxLength),
			Severity: severity,
		}
	}
	if f.config.MinLength > 0 && length < f.config.MinLength {
		return &Failure{
			Name:     f.name,
			Reason:   fmt.Sprintf("content length %d is below minimum %d", length, f.config.MinLength),
			Severity: severity,
		}
	}
	return nil
}
