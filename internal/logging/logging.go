// Package logging builds slog loggers from configuration and the
// LOG_LEVEL, LOG_FORMAT and LOG_ADD_SOURCE environment variables.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	Level     string `yaml:"level" json:"level"`           // debug, info, warn, error
	Format    string `yaml:"format" json:"format"`         // text, json
	AddSource bool   `yaml:"add_source" json:"add_source"` // whether to add source code information
}

// DefaultConfig logs info and above as text.
var DefaultConfig = Config{
	Level:  "info",
	Format: "text",
}

// FromEnv overlays environment settings on cfg. getenv is usually
// os.Getenv.
func FromEnv(cfg Config, getenv func(string) string) Config {
	if level := getenv("LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
	if format := getenv("LOG_FORMAT"); format != "" {
		cfg.Format = strings.ToLower(format)
	}
	if addSource := getenv("LOG_ADD_SOURCE"); addSource != "" {
		cfg.AddSource = strings.ToLower(addSource) == "true"
	}
	return cfg
}

// ParseLevel parses a level name. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
}

// New creates a logger writing to w.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", cfg.Format)
	}
	return slog.New(handler), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
