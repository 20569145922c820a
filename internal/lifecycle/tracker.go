package lifecycle

import "sync"

// Tracker holds incremental invariant state for many concurrent runs.
//
// Each run id owns a cell with its own mutex. The tracker lock only guards
// the map, so events for different runs never contend on a shared lock
// while being evaluated.
type Tracker struct {
	mu    sync.Mutex
	cells map[string]*cell
}

type cell struct {
	mu   sync.Mutex
	seen typeSet
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{cells: make(map[string]*cell)}
}

func (t *Tracker) cell(runID string) *cell {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cells[runID]
	if !ok {
		c = &cell{}
		t.cells[runID] = c
	}
	return c
}

// Check evaluates ev and records it whatever the verdict. A sequence of
// Check calls reports exactly what ValidateSequence reports for the same
// events.
func (t *Tracker) Check(ev Event) (bool, *Violation, error) {
	return t.observe(ev, true)
}

// Admit evaluates ev and records it only when it is accepted. Rejected
// events leave the run's state unchanged.
func (t *Tracker) Admit(ev Event) (bool, *Violation, error) {
	return t.observe(ev, false)
}

func (t *Tracker) observe(ev Event, recordRejected bool) (bool, *Violation, error) {
	if err := ev.Validate(); err != nil {
		return false, nil, err
	}

	c := t.cell(ev.RunID)
	c.mu.Lock()
	defer c.mu.Unlock()

	v := evaluate(ev, c.seen)
	if v == nil || recordRejected {
		c.seen = c.seen.with(ev.Type)
	}
	if v != nil {
		return false, v, nil
	}
	return true, nil, nil
}

// Seen returns the event types recorded for a run, in lifecycle order.
func (t *Tracker) Seen(runID string) []EventType {
	t.mu.Lock()
	c, ok := t.cells[runID]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []EventType
	for _, et := range EventTypes {
		if c.seen.has(et) {
			out = append(out, et)
		}
	}
	return out
}

// Forget drops all state for a run.
func (t *Tracker) Forget(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cells, runID)
}

// Len returns the number of runs with recorded state.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cells)
}
