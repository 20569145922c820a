package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
	"github.com/roach88/overlay/internal/profile"
	"github.com/roach88/overlay/internal/resolver"
	"github.com/roach88/overlay/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResolver resolves against a single effect_io profile with
// deterministic run ids and time.
func createTestResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	reg, err := profile.NewRegistry(contract.Contract{
		Name:      "effect_io",
		Version:   "1.0.0",
		NodeType:  contract.NodeEffect,
		Resources: ir.Object{"memory_mb": ir.Int(256)},
	})
	require.NoError(t, err)

	return resolver.New(reg,
		resolver.WithRunIDGenerator(testutil.NewSequentialRunIDs("run")),
		resolver.WithClock(testutil.NewStepClock(time.Time{}, time.Millisecond).Now),
		resolver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func completedRun(t *testing.T, r *resolver.Resolver) Run {
	t.Helper()
	res, err := r.Resolve(context.Background(), resolver.Request{
		Base: contract.ProfileRef{Profile: "effect_io"},
		Patches: []contract.Patch{{
			Name:      "small",
			Scope:     contract.ScopeOrganization,
			Source:    "org/small.yaml",
			Overrides: ir.Object{"resources": ir.Object{"memory_mb": ir.Int(64)}},
		}},
		Options:       resolver.DefaultOptions(),
		CorrelationID: "corr",
	})
	require.NoError(t, err)
	return RunFromResult(res)
}

func failedRun(t *testing.T, r *resolver.Resolver) Run {
	t.Helper()
	_, err := r.Resolve(context.Background(), resolver.Request{
		Base:    contract.ProfileRef{Profile: "effect_io"},
		Patches: []contract.Patch{{Name: "rename", Overrides: ir.Object{"name": ir.String("other")}}},
		Options: resolver.DefaultOptions(),
	})
	re, ok := resolver.AsRunError(err)
	require.True(t, ok)
	return RunFromError(re)
}
