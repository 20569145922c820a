package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const tunePatch = `name: tune
target_version: 1.0.0
scope: project
overrides:
  version: 1.1.0
  resources:
    memory_mb: 128
  tags: [prod]
`

const hardenPatch = `name: harden
extends:
  profile: effect_io
scope: organization
overrides:
  algorithm:
    retry:
      max_attempts: 2
  dependencies: [transport, cache]
`

const renamePatch = `name: rename
overrides:
  name: something_else
`

// noEnv isolates commands from the test process environment.
func noEnv(string) string { return "" }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
