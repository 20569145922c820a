// Package testutil provides deterministic clocks and run id generators
// for tests and conformance scenarios.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a StepClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultStep is the step used by conformance scenarios.
const DefaultStep = time.Millisecond

// StepClock is a wall clock that advances by a fixed step on every read.
//
// Two runs driven by equal StepClocks observe identical timestamps and
// durations, which keeps event logs byte-identical across test runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewStepClock creates a clock starting at start. A zero start uses Epoch.
//
// The first call to Now returns start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if start.IsZero() {
		start = Epoch
	}
	return &StepClock{start: start, now: start, step: step}
}

// Now returns the current time and advances the clock by one step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the time the next Now call will return.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start time.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}

// FrozenClock returns a clock function that always reports t.
func FrozenClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
