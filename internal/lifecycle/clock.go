package lifecycle

import (
	"sync/atomic"
	"time"
)

// Clock stamps the events of one run with strictly increasing sequence
// numbers, starting at 1.
//
// Seq is the ordering key. Wall time comes from now and never decides
// order.
type Clock struct {
	runID string
	seq   atomic.Int64
	now   func() time.Time
}

// NewClock creates a clock for runID. A nil now uses time.Now.
func NewClock(runID string, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{runID: runID, now: now}
}

// Event returns the next event of type t.
func (c *Clock) Event(t EventType) Event {
	return Event{
		RunID: c.runID,
		Type:  t,
		Seq:   c.seq.Add(1),
		At:    c.now().UTC(),
	}
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
