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
	"regexp"
)

// PiiType identifies a category of personally identifiable information.
type PiiType string

const (
	// PiiEmail matches email addresses.
	PiiEmail PiiType = "Email"
	// PiiPhone matches North-American phone numbers.
	PiiPhone PiiType = "Phone"
	// PiiSSN matches US social security numbers.
	PiiSSN PiiType = "SSN"
	// PiiCreditCard matches 16-digit card numbers.
	PiiCreditCard PiiType = "CreditCard"
	// PiiIPAddress matches dotted IPv4 addresses.
	PiiIPAddress PiiType = "IPAddress"
)

type piiPattern struct {
	typ         PiiType
	re          *regexp.Regexp
	replacement string
}

// Card numbers redact before phone numbers so the phone pattern never
// claims a fragment of a card.
var piiPatterns = []piiPattern{
	{PiiEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), "[EMAIL]"},
	{PiiSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{PiiCreditCard, regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), "[CREDIT_CARD]"},
	{PiiPhone, regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`), "[PHONE]"},
	{PiiIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP_ADDRESS]"},
}

// PiiRedactor replaces detected PII with bracketed placeholders.
type PiiRedactor struct {
	enabled map[PiiType]bool
}

// NewPiiRedactor creates a redactor with every PII type enabled.
func NewPiiRedactor() *PiiRedactor {
	return NewPiiRedactorWithTypes(PiiEmail, PiiPhone, PiiSSN, PiiCreditCard, PiiIPAddress)
}

// NewPiiRedactorWithTypes creates a redactor limited to the given types.
func NewPiiRedactorWithTypes(types ...PiiType) *PiiRedactor {
	enabled := make(map[PiiType]bool, len(types))
	for _, t := range types {
		enabled[t] = true
	}
	return &PiiRedactor{enabled: enabled}
}

// Redact replaces every enabled PII occurrence in text and returns the
// rewritten text plus the types found, in detection order without
// duplicates.
func (r *PiiRedactor) Redact(text string) (string, []PiiType) {
	var found []PiiType
	for _, pattern := range piiPatterns {
		if !r.enabled[pattern.typ] {
			continue
		}
		if !pattern.re.MatchString(text) {
			continue
		}
		text = pattern.re.ReplaceAllString(text, pattern.replacement)
		found = append(found, pattern.typ)
	}
	return text, found
}
