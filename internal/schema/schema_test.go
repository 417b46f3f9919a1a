//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/tool"
)

type searchArgs struct {
	Query    string   `json:"query" description:"the search query"`
	Limit    int      `json:"limit,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Deep     *bool    `json:"deep,omitempty"`
	Internal string   `json:"-"`
	hidden   string
}

type nestedArgs struct {
	Filter struct {
		Region string `json:"region"`
		Radius float64
	} `json:"filter"`
	Extra map[string]int `json:"extra,omitempty"`
}

func TestGenerateStruct(t *testing.T) {
	s := Generate(reflect.TypeOf(searchArgs{}))
	require.Equal(t, "object", s.Type)

	require.Contains(t, s.Properties, "query")
	assert.Equal(t, "string", s.Properties["query"].Type)
	assert.Equal(t, "the search query", s.Properties["query"].Description)

	assert.Equal(t, "integer", s.Properties["limit"].Type)
	assert.Equal(t, "array", s.Properties["tags"].Type)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)
	assert.Equal(t, "boolean,null", s.Properties["deep"].Type)

	assert.NotContains(t, s.Properties, "Internal")
	assert.NotContains(t, s.Properties, "hidden")

	// Only the non-pointer, non-omitempty field is required.
	assert.Equal(t, []string{"query"}, s.Required)
}

func TestGenerateNested(t *testing.T) {
	s := Generate(reflect.TypeOf(nestedArgs{}))
	require.Contains(t, s.Properties, "filter")

	filter := s.Properties["filter"]
	require.Equal(t, "object", filter.Type)
	assert.Equal(t, "string", filter.Properties["region"].Type)
	assert.Equal(t, "number", filter.Properties["Radius"].Type)
	// Nested structs track their own required set.
	assert.ElementsMatch(t, []string{"region", "Radius"}, filter.Required)

	extra := s.Properties["extra"]
	require.Equal(t, "object", extra.Type)
	values, ok := extra.AdditionalProperties.(*tool.Schema)
	require.True(t, ok)
	assert.Equal(t, "integer", values.Type)
}

func TestGenerateScalars(t *testing.T) {
	assert.Equal(t, "string", Generate(reflect.TypeOf("")).Type)
	assert.Equal(t, "integer", Generate(reflect.TypeOf(0)).Type)
	assert.Equal(t, "number", Generate(reflect.TypeOf(0.0)).Type)
	assert.Equal(t, "boolean", Generate(reflect.TypeOf(false)).Type)
	assert.Equal(t, "object", Generate(nil).Type)
}
