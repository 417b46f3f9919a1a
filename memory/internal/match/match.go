//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package match implements the keyword matching shared by memory services.
package match

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Fold normalizes text for caseless comparison. Unicode case folding covers
// cases ASCII lowercasing misses, such as the final sigma and the dotted I.
// A Caser is stateful, so one is built per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Tokens builds search tokens from a query. Latin-script queries split into
// folded words with short words and stopwords removed; queries containing
// Han runes turn into rune bigrams since word boundaries are not spelled out.
func Tokens(query string) []string {
	const minTokenLen = 2
	q := Fold(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if containsHan(q) {
		return hanBigrams(q)
	}
	b := make([]rune, 0, len(q))
	for _, r := range q {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b = append(b, r)
		} else {
			b = append(b, ' ')
		}
	}
	parts := strings.Fields(string(b))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) < minTokenLen || isStopword(p) {
			continue
		}
		out = append(out, p)
	}
	return dedup(out)
}

// Matches reports whether the folded text contains any of the tokens. An
// empty token list falls back to a whole-query substring match.
func Matches(text, query string, tokens []string) bool {
	folded := Fold(text)
	if len(tokens) == 0 {
		q := Fold(strings.TrimSpace(query))
		return q != "" && strings.Contains(folded, q)
	}
	for _, tk := range tokens {
		if strings.Contains(folded, tk) {
			return true
		}
	}
	return false
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func hanBigrams(s string) []string {
	runes := make([]rune, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		runes = append(runes, r)
	}
	if len(runes) == 0 {
		return nil
	}
	if len(runes) == 1 {
		return []string{string(runes[0])}
	}
	toks := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		toks = append(toks, string(runes[i:i+2]))
	}
	return dedup(toks)
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isStopword(s string) bool {
	switch s {
	case "a", "an", "the", "and", "or", "of", "in", "on", "to",
		"for", "with", "is", "are", "am", "be":
		return true
	default:
		return false
	}
}
