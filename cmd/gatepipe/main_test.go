package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		setEnv       bool
		expected     string
	}{
		{
			name:         "returns default when env not set",
			key:          "TEST_GATEPIPE_NOTSET",
			defaultValue: "default-value",
			setEnv:       false,
			expected:     "default-value",
		},
		{
			name:         "returns env value when set",
			key:          "TEST_GATEPIPE_SET",
			defaultValue: "default-value",
			envValue:     "env-value",
			setEnv:       true,
			expected:     "env-value",
		},
		{
			name:         "returns default when env is empty string",
			key:          "TEST_GATEPIPE_EMPTY",
			defaultValue: "default-value",
			envValue:     "",
			setEnv:       true,
			expected:     "default-value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer os.Unsetenv(tt.key)

			if tt.setEnv {
				os.Setenv(tt.key, tt.envValue)
			}

			assert.Equal(t, tt.expected, getEnvOrDefault(tt.key, tt.defaultValue))
		})
	}
}

func TestPrintVersion(t *testing.T) {
	origVersion := version
	origBuildTime := buildTime
	origGitCommit := gitCommit

	version = "1.0.0-test"
	buildTime = "2024-01-01T00:00:00Z"
	gitCommit = "abc123"

	defer func() {
		version = origVersion
		buildTime = origBuildTime
		gitCommit = origGitCommit
	}()

	// Should not panic.
	printVersion()
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(cliFlags{logLevel: "debug", logFormat: "console"})
	assert.NotNil(t, logger)

	// Sync on stdout fails on some platforms, which is fine here.
	logger.Debug("logger initialized")
	_ = logger.Sync()
}
