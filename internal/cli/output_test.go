package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overlay/internal/contract"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"hash": "abc"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Empty(t, resp.RunID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("MERGE_CONFLICT", "protected field", map[string]string{"path": "name"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MERGE_CONFLICT", resp.Error.Code)
	assert.Equal(t, "protected field", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONDoesNotEscapeHTML(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success("a <b> & c"))
	assert.Contains(t, buf.String(), "a <b> & c")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("All patches valid")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "All patches valid")
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			err := formatter.Error("E005", "file not found", map[string]string{"path": "tune.yaml"})
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "Error [E005]")
			assert.Contains(t, buf.String(), "file not found")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_TextErrorGoesToStderr(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	require.NoError(t, formatter.Error("E005", "file not found", nil))
	assert.Empty(t, out.String())
	assert.Equal(t, "Error [E005]: file not found\n", errOut.String())
}

func TestCommandErrorIsReportedOnce(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	err := commandError(formatter, ErrCodeNotFound, "failed to read patch", errors.New("no such file"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Empty(t, out.String())
	assert.Equal(t, "Error [E005]: failed to read patch: no such file\n", errOut.String())

	assert.False(t, Reported(NewExitError(ExitFailure, "validation failed")))
	assert.False(t, Reported(errors.New("plain")))
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "tune.yaml")

			assert.Empty(t, buf.String(), "verbose output must not corrupt JSON on stdout")
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "Processing tune.yaml")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain_error", errors.New("boom"), ExitFailure},
		{"exit_failure", NewExitError(ExitFailure, "failed"), ExitFailure},
		{"command_error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("x"))), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	assert.Equal(t, "failed", NewExitError(ExitFailure, "failed").Error())

	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "write", cause)
	assert.Equal(t, "write: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", errorCode(contract.NewNotFound("x@1.0.0", "unknown profile")))
	assert.Equal(t, "MERGE_CONFLICT", errorCode(fmt.Errorf("wrapped: %w", contract.NewMergeConflict("p", "name", "protected"))))
	assert.Equal(t, ErrCodeGeneric, errorCode(errors.New("untyped")))
}
