package harness

import (
	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/resolver"
	"github.com/roach88/overlay/internal/store"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the outcome matched and every assertion held.
	Pass bool `json:"pass"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Outcome is "completed" or "failed".
	Outcome string `json:"outcome"`

	// Resolved is set for completed runs.
	Resolved *resolver.Result `json:"resolved,omitempty"`

	// Failure is set for failed runs.
	Failure *resolver.RunError `json:"-"`

	// Lifecycle and Events are the run's recorded history, whatever the
	// outcome.
	Lifecycle []lifecycle.Event `json:"lifecycle"`
	Events    []event.Envelope  `json:"events"`

	// Stored is the run as read back from the journal.
	Stored store.Run `json:"stored"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Errors:    []string{},
		Lifecycle: []lifecycle.Event{},
		Events:    []event.Envelope{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
