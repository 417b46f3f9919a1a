//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package langfuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var langfuseEnvKeys = []string{
	"LANGFUSE_SECRET_KEY", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_HOST", "LANGFUSE_INSECURE",
}

func TestOptions(t *testing.T) {
	cfg := &config{}
	WithSecretKey("sk-lf-1")(cfg)
	WithPublicKey("pk-lf-1")(cfg)
	WithHost("cloud.langfuse.com:443")(cfg)
	WithInsecure()(cfg)

	assert.Equal(t, &config{
		secretKey: "sk-lf-1",
		publicKey: "pk-lf-1",
		host:      "cloud.langfuse.com:443",
		insecure:  true,
	}, cfg)
}

func TestNewConfigFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *config
	}{
		{
			name: "all set",
			envVars: map[string]string{
				"LANGFUSE_SECRET_KEY": "sk-lf-test",
				"LANGFUSE_PUBLIC_KEY": "pk-lf-test",
				"LANGFUSE_HOST":       "cloud.langfuse.com:443",
				"LANGFUSE_INSECURE":   "true",
			},
			expected: &config{
				secretKey: "sk-lf-test",
				publicKey: "pk-lf-test",
				host:      "cloud.langfuse.com:443",
				insecure:  true,
			},
		},
		{
			name:     "unset",
			envVars:  map[string]string{},
			expected: &config{},
		},
		{
			name: "insecure not a boolean",
			envVars: map[string]string{
				"LANGFUSE_INSECURE": "yes",
			},
			expected: &config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range langfuseEnvKeys {
				t.Setenv(key, "")
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			assert.Equal(t, tt.expected, newConfigFromEnv())
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("LANGFUSE_TEST_KEY", "from-env")
	assert.Equal(t, "from-env", getEnv("LANGFUSE_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getEnv("LANGFUSE_TEST_KEY_MISSING", "fallback"))

	// A variable set to empty wins over the fallback.
	t.Setenv("LANGFUSE_TEST_EMPTY", "")
	assert.Equal(t, "", getEnv("LANGFUSE_TEST_EMPTY", "fallback"))
}
