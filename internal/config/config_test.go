package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
	"github.com/roach88/overlay/internal/logging"
	"github.com/roach88/overlay/internal/resolver"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, resolver.DefaultOptions(), cfg.Options())
	assert.Equal(t, Duration(DefaultTimeout), cfg.Timeout)
	assert.Equal(t, logging.DefaultConfig, cfg.Log)
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
profiles_dir: ./profiles
db: overlay.db
include_diff: true
include_overlay_refs: false
timeout: 250ms
strict_paths: true
merge:
  tags: union
  algorithm.retry: replace
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "./profiles", cfg.ProfilesDir)
	assert.Equal(t, "overlay.db", cfg.DB)
	assert.Equal(t, resolver.Options{IncludeDiff: true, IncludeOverlayRefs: false}, cfg.Options())
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Timeout)
	assert.True(t, cfg.StrictPaths)
	assert.Equal(t, logging.Config{Level: "debug", Format: "json"}, cfg.Log)

	s, err := cfg.Schema()
	require.NoError(t, err)
	assert.Equal(t, contract.StrategyUnion, s.StrategyAt(ir.Path{"tags"}, ir.KindList))
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "profile_dir: x\n"},
		{"unknown nested key", "log:\n  colour: true\n"},
		{"bad duration", "timeout: soon\n"},
		{"negative duration", "timeout: -1s\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad strategy", "merge:\n  tags: sideways\n"},
		{"additive on object", "merge:\n  resources: append\n"},
		{"unknown merge field", "merge:\n  nope: replace\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: runs.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "runs.db", cfg.DB)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	vars := map[string]string{
		EnvProfilesDir: "/etc/overlay/profiles",
		EnvDB:          "/var/lib/overlay.db",
		EnvTimeout:     "2s",
		"LOG_LEVEL":    "warn",
	}
	cfg, err := Default().ApplyEnv(func(k string) string { return vars[k] })
	require.NoError(t, err)

	assert.Equal(t, "/etc/overlay/profiles", cfg.ProfilesDir)
	assert.Equal(t, "/var/lib/overlay.db", cfg.DB)
	assert.Equal(t, Duration(2*time.Second), cfg.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)

	_, err = Default().ApplyEnv(func(k string) string {
		if k == EnvTimeout {
			return "later"
		}
		return ""
	})
	assert.Error(t, err)
}

func TestMerger(t *testing.T) {
	cfg := Default()
	cfg.Merge = map[string]contract.MergeStrategy{"tags": contract.StrategyAppend}
	cfg.StrictPaths = true

	m, err := cfg.Merger()
	require.NoError(t, err)

	base := contract.Contract{Name: "n", Version: "1.0.0", NodeType: contract.NodeCompute, Tags: ir.Strings("a")}
	out, err := m.Apply(base, contract.Patch{Overrides: ir.Object{"tags": ir.Strings("b")}})
	require.NoError(t, err)
	assert.Equal(t, ir.Strings("a", "b"), out.Tags)

	_, err = m.Apply(base, contract.Patch{Overrides: ir.Object{"io": ir.Object{"bogus": ir.String("x")}}})
	assert.True(t, contract.IsValidation(err))
}
