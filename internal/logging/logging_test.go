package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv(t *testing.T) {
	cfg := FromEnv(DefaultConfig, env(map[string]string{
		"LOG_LEVEL":      "DEBUG",
		"LOG_FORMAT":     "JSON",
		"LOG_ADD_SOURCE": "true",
	}))
	assert.Equal(t, Config{Level: "debug", Format: "json", AddSource: true}, cfg)

	assert.Equal(t, DefaultConfig, FromEnv(DefaultConfig, env(nil)))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "info", Format: "json"})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("resolution completed", "run_id", "r1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "resolution completed", line["msg"])
	assert.Equal(t, "r1", line["run_id"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "debug"})
	require.NoError(t, err)

	logger.Debug("overlay applied", "index", 0)
	assert.Contains(t, buf.String(), "msg=\"overlay applied\" index=0")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Config{Format: "xml"})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
