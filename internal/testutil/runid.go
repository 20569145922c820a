package testutil

import (
	"fmt"
	"sync"
)

// FixedRunID generates the same run id every time.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for id. If id is empty, Generate
// returns "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunID) Generate() string {
	return g.id
}

// SequentialRunIDs generates "<prefix>-0001", "<prefix>-0002", ...
//
// Thread-safety: SequentialRunIDs is safe for concurrent use via internal
// mutex.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a sequential generator. An empty prefix
// uses "run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
