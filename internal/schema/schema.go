//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package schema derives JSON schemas from Go types by reflection.
package schema

import (
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Generate builds a JSON schema for t. Struct fields follow their json tags;
// unexported fields and fields tagged json:"-" are skipped. A field is
// required unless it is a pointer or carries omitempty.
func Generate(t reflect.Type) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: "object"}
	}
	return generate(t)
}

func generate(t reflect.Type) *tool.Schema {
	switch t.Kind() {
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{
			Type:  "array",
			Items: generate(t.Elem()),
		}
	case reflect.Map:
		return &tool.Schema{
			Type:                 "object",
			AdditionalProperties: generate(t.Elem()),
		}
	case reflect.Ptr:
		// Pointers mark a value as nullable.
		s := generate(t.Elem())
		if !strings.HasSuffix(s.Type, ",null") {
			s.Type += ",null"
		}
		return s
	case reflect.Struct:
		return generateStruct(t)
	default:
		return &tool.Schema{Type: "object"}
	}
}

func generateStruct(t reflect.Type) *tool.Schema {
	schema := &tool.Schema{
		Type:       "object",
		Properties: make(map[string]*tool.Schema),
	}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty, skip := parseJSONTag(field)
		if skip {
			continue
		}

		fieldSchema := generate(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema.Description = desc
		}
		schema.Properties[name] = fieldSchema

		if field.Type.Kind() != reflect.Ptr && !omitEmpty {
			required = append(required, name)
		}
	}
	schema.Required = required
	return schema
}

func parseJSONTag(field reflect.StructField) (name string, omitEmpty, skip bool) {
	name = field.Name
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
