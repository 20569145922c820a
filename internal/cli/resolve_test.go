package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/store"
	"github.com/roach88/overlay/internal/testutil"
)

func newTestResolveCommand(format, runID string) *cobra.Command {
	opts := &ResolveOptions{
		RootOptions: &RootOptions{Format: format, Getenv: noEnv},
		RunIDs:      testutil.NewFixedRunID(runID),
		Now:         testutil.NewStepClock(testutil.Epoch, testutil.DefaultStep).Now,
	}
	return newResolveCommand(opts)
}

func TestResolveText(t *testing.T) {
	dir := t.TempDir()
	tune := writeFile(t, dir, "tune.yaml", tunePatch)
	harden := writeFile(t, dir, "harden.yaml", hardenPatch)

	out, _, err := execute(newTestResolveCommand("text", "run-cli"), "effect_io@1.0.0", tune, harden, "--diff")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ resolved effect_io@1.0.0 with 2 overlay(s)")
	assert.Contains(t, out, "run:      run-cli")
	assert.Contains(t, out, "overlay:  #0 tune@1.0.0")
	assert.Contains(t, out, "overlay:  #1 harden@1.1.0")
	assert.Contains(t, out, "resources.memory_mb")
	assert.Contains(t, out, `"version": "1.1.0"`)
}

func TestResolveJSON(t *testing.T) {
	dir := t.TempDir()
	tune := writeFile(t, dir, "tune.yaml", tunePatch)

	out, _, err := execute(newTestResolveCommand("json", "run-json"), "effect_io", tune)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Data   struct {
			ResolvedHash string         `json:"resolved_hash"`
			PatchHashes  []string       `json:"patch_hashes"`
			Contract     map[string]any `json:"contract"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-json", resp.RunID)
	assert.Len(t, resp.Data.ResolvedHash, 64)
	assert.Len(t, resp.Data.PatchHashes, 1)
	assert.Equal(t, "1.1.0", resp.Data.Contract["version"])
}

func TestResolveDeterministicHash(t *testing.T) {
	dir := t.TempDir()
	tune := writeFile(t, dir, "tune.yaml", tunePatch)
	harden := writeFile(t, dir, "harden.yaml", hardenPatch)

	hashOf := func(runID string) string {
		out, _, err := execute(newTestResolveCommand("json", runID), "effect_io@1.0.0", tune, harden)
		require.NoError(t, err)
		var resp struct {
			Data struct {
				ResolvedHash string `json:"resolved_hash"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		return resp.Data.ResolvedHash
	}

	assert.Equal(t, hashOf("run-a"), hashOf("run-b"), "run id must not affect the resolved hash")
}

func TestResolveFailure(t *testing.T) {
	dir := t.TempDir()
	rename := writeFile(t, dir, "rename.yaml", renamePatch)

	t.Run("text", func(t *testing.T) {
		out, errOut, err := execute(newTestResolveCommand("text", "run-fail"), "effect_io", rename)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.True(t, Reported(err))
		assert.Empty(t, out)
		assert.Equal(t, 1, strings.Count(errOut, "✗"), "one diagnostic")
		assert.Contains(t, errOut, "✗ run run-fail failed during merge")
		assert.Contains(t, errOut, "protected field")
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(newTestResolveCommand("json", "run-fail"), "effect_io", rename)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp struct {
			Status string `json:"status"`
			RunID  string `json:"run_id"`
			Error  struct {
				Code    string `json:"code"`
				Details struct {
					Stage   string `json:"stage"`
					Subject string `json:"subject"`
					Path    string `json:"path"`
				} `json:"details"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "run-fail", resp.RunID)
		assert.Equal(t, "MERGE_CONFLICT", resp.Error.Code)
		assert.Equal(t, "merge", resp.Error.Details.Stage)
		assert.Equal(t, "rename", resp.Error.Details.Subject)
		assert.Equal(t, "name", resp.Error.Details.Path)
	})
}

func TestResolveUnknownProfile(t *testing.T) {
	out, _, err := execute(newTestResolveCommand("json", "run-missing"), "no_such_profile@1.0.0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"NOT_FOUND"`)
	assert.Contains(t, out, `"stage": "validation"`)
}

func TestResolveCommandErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "overrides: [1, 2\n")

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"missing_patch", []string{"effect_io", filepath.Join(dir, "missing.yaml")}, ErrCodeNotFound},
		{"undecodable_patch", []string{"effect_io", bad}, ErrCodeReadFailed},
		{"bad_base_ref", []string{"effect_io@one"}, "VALIDATION"},
		{"missing_profiles_dir", []string{"effect_io", "--profiles", filepath.Join(dir, "nope")}, ErrCodeProfiles},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(newTestResolveCommand("json", "run-x"), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestResolveFloatDiagnostic(t *testing.T) {
	cpu := writeFile(t, t.TempDir(), "cpu.yaml", "name: cpu\noverrides:\n  resources:\n    cpu: 0.5\n")

	out, errOut, err := execute(newTestResolveCommand("text", "run-float"), "effect_io", cpu)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Empty(t, out)
	assert.Contains(t, errOut, "cpu.yaml")
	assert.Contains(t, errOut, "floats are forbidden; write the value as a string or an integer: 0.5")
}

func TestResolveJournalsRun(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	tune := writeFile(t, dir, "tune.yaml", tunePatch)
	rename := writeFile(t, dir, "rename.yaml", renamePatch)

	_, _, err := execute(newTestResolveCommand("text", "run-ok"), "effect_io@1.0.0", tune, "--db", db, "--correlation-id", "corr-1")
	require.NoError(t, err)
	_, _, err = execute(newTestResolveCommand("text", "run-bad"), "effect_io@1.0.0", rename, "--db", db)
	require.Error(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runs, err := st.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-ok", runs[0].ID)
	assert.Equal(t, store.StatusCompleted, runs[0].Status)
	assert.Equal(t, "corr-1", runs[0].CorrelationID)
	assert.Equal(t, "run-bad", runs[1].ID)
	assert.Equal(t, store.StatusFailed, runs[1].Status)

	ok, violations, err := st.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, violations)
}

func TestResolvePublishesEvents(t *testing.T) {
	dir := t.TempDir()
	tune := writeFile(t, dir, "tune.yaml", tunePatch)
	eventsPath := filepath.Join(dir, "events.jsonl")

	_, _, err := execute(newTestResolveCommand("text", "run-events"), "effect_io", tune, "--events", eventsPath, "--correlation-id", "corr-ev")
	require.NoError(t, err)

	f, err := os.Open(eventsPath)
	require.NoError(t, err)
	defer f.Close()

	var topics []event.Topic
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var env struct {
			Topic         event.Topic `json:"topic"`
			RunID         string      `json:"run_id"`
			CorrelationID string      `json:"correlation_id"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &env))
		assert.Equal(t, "run-events", env.RunID)
		assert.Equal(t, "corr-ev", env.CorrelationID)
		topics = append(topics, env.Topic)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []event.Topic{event.TopicResolveRequested, event.TopicResolveCompleted}, topics)
}

func TestResolveEventsToStderr(t *testing.T) {
	dir := t.TempDir()
	tune := writeFile(t, dir, "tune.yaml", tunePatch)

	out, errOut, err := execute(newTestResolveCommand("json", "run-stderr"), "effect_io", tune, "--events", "-")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(errOut), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], string(event.TopicResolveRequested))
	assert.Contains(t, lines[1], string(event.TopicResolveCompleted))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "stdout must stay a single JSON document")
}

func TestResolveConfigFile(t *testing.T) {
	dir := t.TempDir()
	harden := writeFile(t, dir, "harden.yaml", hardenPatch)
	cfgPath := writeFile(t, dir, "overlay.yaml", "merge:\n  dependencies: replace\n")

	opts := &ResolveOptions{
		RootOptions: &RootOptions{Format: "json", Config: cfgPath, Getenv: noEnv},
		RunIDs:      testutil.NewFixedRunID("run-cfg"),
	}
	out, _, err := execute(newResolveCommand(opts), "effect_io", harden)
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Contract struct {
				Dependencies []string `json:"dependencies"`
			} `json:"contract"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"transport", "cache"}, resp.Data.Contract.Dependencies)
}
