package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/overlay/internal/config"
	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/logging"
	"github.com/roach88/overlay/internal/profile"
	"github.com/roach88/overlay/internal/resolver"
	"github.com/roach88/overlay/internal/store"
	"github.com/roach88/overlay/internal/testutil"
)

// Harness holds the per-scenario execution state.
type Harness struct {
	store    *store.Store
	resolver *resolver.Resolver
	clock    *testutil.StepClock
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal with a fixed run id and a
// step clock, so two executions produce identical histories.
//
// Execution flow:
// 1. Build the profile registry and configured merger
// 2. Resolve the scenario's base and patches under a lifecycle guard
// 3. Journal the run and audit the journal
// 4. Check the expected outcome and evaluate assertions
//
// An error is returned only when the scenario cannot be executed at all;
// failed resolutions are outcomes, not errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	base, err := contract.ParseProfileRef(scenario.Base)
	if err != nil {
		return nil, fmt.Errorf("invalid base: %w", err)
	}
	patches, err := scenario.DecodePatches()
	if err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}

	opts := resolver.Options{
		IncludeDiff:        scenario.Options.IncludeDiff,
		IncludeOverlayRefs: true,
	}
	if scenario.Options.IncludeOverlayRefs != nil {
		opts.IncludeOverlayRefs = *scenario.Options.IncludeOverlayRefs
	}

	result := NewResult()
	res, rerr := h.resolver.Resolve(ctx, resolver.Request{
		Base:          base,
		Patches:       patches,
		Options:       opts,
		CorrelationID: scenario.CorrelationID,
	})

	var run store.Run
	switch {
	case rerr == nil:
		result.Outcome = OutcomeCompleted
		result.Resolved = res
		result.Lifecycle = res.Lifecycle
		result.Events = res.Events
		run = store.RunFromResult(res)
	default:
		re, ok := resolver.AsRunError(rerr)
		if !ok {
			return nil, fmt.Errorf("unexpected resolver error: %w", rerr)
		}
		result.Outcome = OutcomeFailed
		result.Failure = re
		result.Lifecycle = re.Lifecycle
		result.Events = re.Events
		run = store.RunFromError(re)
	}

	if err := h.store.WriteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to journal run: %w", err)
	}
	if result.Stored, err = h.store.ReadRun(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("failed to read journaled run: %w", err)
	}
	ok, violations, err := h.store.Audit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to audit journal: %w", err)
	}
	if !ok {
		for _, v := range violations {
			result.AddError("journal audit: " + v.String())
		}
	}

	checkExpect(result, scenario.Expect)

	actx := &AssertionContext{Store: h.store, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	reg, err := profile.Open(scenario.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	cfg := config.Default()
	cfg.Merge = scenario.Merge
	cfg.StrictPaths = scenario.StrictPaths
	merger, err := cfg.Merger()
	if err != nil {
		return nil, fmt.Errorf("invalid merge configuration: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	h := &Harness{
		store:  st,
		clock:  testutil.NewStepClock(testutil.Epoch, testutil.DefaultStep),
		logger: logging.Discard(),
	}
	h.resolver = resolver.New(reg,
		resolver.WithMerger(merger),
		resolver.WithRunIDGenerator(testutil.NewFixedRunID(scenario.RunID)),
		resolver.WithClock(h.clock.Now),
		resolver.WithGuard(lifecycle.NewTracker()),
		resolver.WithLogger(h.logger),
	)
	return h, nil
}

func checkExpect(result *Result, want Expect) {
	if result.Outcome != want.Outcome {
		msg := fmt.Sprintf("expected outcome %s, got %s", want.Outcome, result.Outcome)
		if result.Failure != nil {
			msg += ": " + result.Failure.Err.Error()
		}
		result.AddError(msg)
		return
	}
	if result.Failure == nil {
		return
	}

	re := result.Failure
	if got := contract.CodeOf(re.Err); got != want.ErrorCode {
		result.AddError(fmt.Sprintf("expected error code %s, got %s: %v", want.ErrorCode, got, re.Err))
	}
	if want.Stage != "" && string(re.Stage) != want.Stage {
		result.AddError(fmt.Sprintf("expected failure during %s, got %s", want.Stage, re.Stage))
	}
	if want.Subject != "" {
		var cerr *contract.Error
		switch {
		case !errors.As(re.Err, &cerr):
			result.AddError(fmt.Sprintf("expected subject %s, got untyped error %v", want.Subject, re.Err))
		case cerr.Subject != want.Subject:
			result.AddError(fmt.Sprintf("expected subject %s, got %s", want.Subject, cerr.Subject))
		}
	}
}
