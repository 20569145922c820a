package resolver

import (
	"errors"
	"fmt"

	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/lifecycle"
)

// Stage names the lifecycle phase a run was in when it stopped.
type Stage string

const (
	StageValidation Stage = "validation"
	StageMerge      Stage = "merge"
)

// RunError reports a failed run. No partial result accompanies it; the
// lifecycle events and envelopes emitted before the failure are kept for
// auditing.
type RunError struct {
	RunID     string
	Stage     Stage
	Lifecycle []lifecycle.Event
	Events    []event.Envelope
	Err       error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed during %s: %v", e.RunID, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// AsRunError extracts a RunError from err.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
