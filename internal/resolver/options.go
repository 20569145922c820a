package resolver

import (
	"log/slog"
	"time"

	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/merge"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithMerger replaces the default merger.
func WithMerger(m *merge.Merger) Option {
	return func(r *Resolver) {
		r.merger = m
	}
}

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Resolver) {
		r.runIDs = g
	}
}

// WithClock sets the wall clock used for event timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithGuard admits every lifecycle event through t before it is accepted.
// A rejected event aborts the run.
func WithGuard(t *lifecycle.Tracker) Option {
	return func(r *Resolver) {
		r.guard = t
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// Options are the caller-controlled switches of one run.
type Options struct {
	IncludeDiff        bool `json:"include_diff"`
	IncludeOverlayRefs bool `json:"include_overlay_refs"`
}

// DefaultOptions returns IncludeDiff=false, IncludeOverlayRefs=true.
func DefaultOptions() Options {
	return Options{IncludeDiff: false, IncludeOverlayRefs: true}
}
