package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: \"9001\"\nbackendURL: http://rag:8000\nrequestTimeout: 90s\n"), 0o644))

	t.Setenv("PORT", "9002")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	// Env beats file, file beats default.
	assert.Equal(t, "9002", cfg.Port)
	assert.Equal(t, "http://rag:8000", cfg.BackendURL)

	timeout, err := cfg.timeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, timeout)
}

func TestConfigTimeoutInvalid(t *testing.T) {
	cfg := config{RequestTimeout: "ninety seconds"}
	_, err := cfg.timeout()
	assert.Error(t, err)
}

func TestConfigSlogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{level: "", want: slog.LevelInfo},
		{level: "debug", want: slog.LevelDebug},
		{level: "warn", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := config{LogLevel: tt.level}.slogLevel()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
