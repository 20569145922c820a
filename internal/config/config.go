// Package config loads overlay configuration from a YAML file and the
// environment.
//
// Precedence, lowest first: defaults, config file, environment, flags.
// Flags are applied by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/logging"
	"github.com/roach88/overlay/internal/merge"
	"github.com/roach88/overlay/internal/resolver"
)

// Environment variables read by ApplyEnv.
const (
	EnvProfilesDir = "OVERLAY_PROFILES_DIR"
	EnvDB          = "OVERLAY_DB"
	EnvTimeout     = "OVERLAY_TIMEOUT"
)

// DefaultTimeout bounds a single resolution.
const DefaultTimeout = 30 * time.Second

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML parses "250ms", "5s" and similar.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", n.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the overlay configuration file.
type Config struct {
	// ProfilesDir holds extra .cue profile definitions; builtin profiles
	// are always available.
	ProfilesDir string `yaml:"profiles_dir,omitempty"`

	// DB is the run journal path. Empty disables journaling.
	DB string `yaml:"db,omitempty"`

	IncludeDiff        bool     `yaml:"include_diff"`
	IncludeOverlayRefs bool     `yaml:"include_overlay_refs"`
	Timeout            Duration `yaml:"timeout"`

	// StrictPaths rejects unknown keys under io.
	StrictPaths bool `yaml:"strict_paths,omitempty"`

	// Merge maps field paths to list strategies (replace, append, union,
	// merge).
	Merge map[string]contract.MergeStrategy `yaml:"merge,omitempty"`

	Log logging.Config `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := resolver.DefaultOptions()
	return Config{
		IncludeDiff:        opts.IncludeDiff,
		IncludeOverlayRefs: opts.IncludeOverlayRefs,
		Timeout:            Duration(DefaultTimeout),
		Log:                logging.DefaultConfig,
	}
}

// Load reads path over the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment settings. getenv is usually os.Getenv.
func (c Config) ApplyEnv(getenv func(string) string) (Config, error) {
	if v := getenv(EnvProfilesDir); v != "" {
		c.ProfilesDir = v
	}
	if v := getenv(EnvDB); v != "" {
		c.DB = v
	}
	if v := getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = Duration(d)
	}
	c.Log = logging.FromEnv(c.Log, getenv)
	return c, c.Validate()
}

// Validate checks values that YAML decoding cannot.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", time.Duration(c.Timeout))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := c.Schema(); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

// Schema returns the default merge schema with the configured strategies
// applied in path order.
func (c Config) Schema() (merge.Schema, error) {
	s := merge.DefaultSchema()
	paths := make([]string, 0, len(c.Merge))
	for p := range c.Merge {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		var err error
		if s, err = s.With(p, c.Merge[p]); err != nil {
			return merge.Schema{}, err
		}
	}
	return s, nil
}

// Merger builds the configured merger.
func (c Config) Merger() (*merge.Merger, error) {
	s, err := c.Schema()
	if err != nil {
		return nil, err
	}
	opts := []merge.Option{merge.WithSchema(s)}
	if c.StrictPaths {
		opts = append(opts, merge.WithStrictPaths())
	}
	return merge.New(opts...), nil
}

// Options returns the resolver options selected by the configuration.
func (c Config) Options() resolver.Options {
	return resolver.Options{
		IncludeDiff:        c.IncludeDiff,
		IncludeOverlayRefs: c.IncludeOverlayRefs,
	}
}
