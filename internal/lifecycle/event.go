package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// EventType names one lifecycle step.
type EventType string

const (
	ValidationStarted EventType = "validation_started"
	ValidationPassed  EventType = "validation_passed"
	ValidationFailed  EventType = "validation_failed"
	MergeStarted      EventType = "merge_started"
	MergeCompleted    EventType = "merge_completed"
)

// EventTypes lists every known type in lifecycle order.
var EventTypes = []EventType{
	ValidationStarted,
	ValidationPassed,
	ValidationFailed,
	MergeStarted,
	MergeCompleted,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t.bit() != 0
}

func (t EventType) bit() typeSet {
	for i, known := range EventTypes {
		if t == known {
			return 1 << i
		}
	}
	return 0
}

// Terminal reports whether t concludes validation.
func (t EventType) Terminal() bool {
	return t == ValidationPassed || t == ValidationFailed
}

// Event is a timestamped fact about one run.
//
// Seq is assigned by a per-run Clock and orders events within the run. At
// is wall time and is informational only.
type Event struct {
	RunID string    `json:"run_id"`
	Type  EventType `json:"type"`
	Seq   int64     `json:"seq"`
	At    time.Time `json:"at"`
}

// ErrMalformedEvent is wrapped by every error describing unusable input.
var ErrMalformedEvent = errors.New("malformed lifecycle event")

// Validate checks that ev can be evaluated.
func (ev Event) Validate() error {
	if ev.RunID == "" {
		return fmt.Errorf("%w: empty run id (type=%s, seq=%d)", ErrMalformedEvent, ev.Type, ev.Seq)
	}
	if !ev.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q (run=%s, seq=%d)", ErrMalformedEvent, ev.Type, ev.RunID, ev.Seq)
	}
	return nil
}

// typeSet is the set of event types seen for one run.
type typeSet uint8

func (s typeSet) has(t EventType) bool {
	return s&t.bit() != 0
}

func (s typeSet) with(t EventType) typeSet {
	return s | t.bit()
}
