package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/overlay/internal/compiler"
	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/diff"
	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/ir"
	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/merge"
	"github.com/roach88/overlay/internal/profile"
)

// Request is one resolution.
type Request struct {
	Base          contract.ProfileRef
	Patches       []contract.Patch
	Options       Options
	CorrelationID string
}

// Result is a completed resolution.
type Result struct {
	RunID         string                 `json:"run_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Base          contract.Contract      `json:"base"`
	Contract      contract.Contract      `json:"contract"`
	ResolvedHash  string                 `json:"resolved_hash"`
	PatchHashes   []string               `json:"patch_hashes"`
	OverlayRefs   []contract.OverlayRef  `json:"overlay_refs,omitempty"`
	Diff          *diff.Diff             `json:"diff,omitempty"`
	DiffMarkdown  string                 `json:"diff_markdown,omitempty"`
	Build         contract.ResolverBuild `json:"resolver_build"`
	Events        []event.Envelope       `json:"events"`
	Lifecycle     []lifecycle.Event      `json:"lifecycle"`
	Duration      time.Duration          `json:"duration_ns"`
}

// Resolver runs resolutions against a profile factory.
type Resolver struct {
	factory profile.Factory
	merger  *merge.Merger
	runIDs  RunIDGenerator
	now     func() time.Time
	guard   *lifecycle.Tracker
	logger  *slog.Logger
}

// New creates a Resolver.
func New(factory profile.Factory, opts ...Option) *Resolver {
	r := &Resolver{
		factory: factory,
		merger:  merge.New(),
		runIDs:  UUIDv7Generator{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run holds the state of one Resolve call.
type run struct {
	id     string
	req    Request
	clock  *lifecycle.Clock
	guard  *lifecycle.Tracker
	logger *slog.Logger

	stage     Stage
	lifecycle []lifecycle.Event
	events    []event.Envelope
}

func (rn *run) emit(t lifecycle.EventType) error {
	ev := rn.clock.Event(t)
	if rn.guard != nil {
		ok, v, err := rn.guard.Admit(ev)
		if err != nil {
			return err
		}
		if !ok {
			rn.logger.Warn("lifecycle event rejected", "type", t, "rule", v.Rule)
			return v.Err()
		}
	}
	rn.lifecycle = append(rn.lifecycle, ev)
	rn.logger.Debug("lifecycle event", "type", t, "seq", ev.Seq)
	return nil
}

func (rn *run) fail(err error) *RunError {
	rn.logger.Warn("resolution failed", "stage", rn.stage, "error", err)
	return &RunError{
		RunID:     rn.id,
		Stage:     rn.stage,
		Lifecycle: rn.lifecycle,
		Events:    rn.events,
		Err:       err,
	}
}

// Resolve composes req.Base with req.Patches in order.
//
// On any failure Resolve returns a *RunError and no result. A run whose
// context ends before completion is failed, never partially completed.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	start := r.now()
	id := r.runIDs.Generate()
	rn := &run{
		id:     id,
		req:    req,
		clock:  lifecycle.NewClock(id, r.now),
		guard:  r.guard,
		logger: r.logger.With("run_id", id),
		stage:  StageValidation,
	}
	if r.guard != nil {
		defer r.guard.Forget(id)
	}

	rn.events = append(rn.events, event.NewRequested(event.Requested{
		RunID:         id,
		BaseProfile:   req.Base.Profile,
		PatchCount:    len(req.Patches),
		CorrelationID: req.CorrelationID,
	}))
	if err := rn.emit(lifecycle.ValidationStarted); err != nil {
		return nil, rn.fail(err)
	}

	base, err := r.validate(ctx, req)
	if err != nil {
		if gerr := rn.emit(lifecycle.ValidationFailed); gerr != nil {
			err = errors.Join(err, gerr)
		}
		return nil, rn.fail(err)
	}
	if err := rn.emit(lifecycle.ValidationPassed); err != nil {
		return nil, rn.fail(err)
	}

	rn.stage = StageMerge
	if err := rn.emit(lifecycle.MergeStarted); err != nil {
		return nil, rn.fail(err)
	}

	res, err := r.merge(ctx, rn, base)
	if err != nil {
		return nil, rn.fail(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, rn.fail(fmt.Errorf("resolution interrupted: %w", err))
	}
	if err := rn.emit(lifecycle.MergeCompleted); err != nil {
		return nil, rn.fail(err)
	}

	res.Duration = r.now().Sub(start)
	refs := res.OverlayRefs
	rn.events = append(rn.events, event.NewCompleted(event.Completed{
		RunID:                id,
		ResolvedHash:         res.ResolvedHash,
		OverlaysAppliedCount: len(req.Patches),
		OverlayRefs:          refs,
		ResolverBuild:        res.Build,
		DurationMS:           res.Duration.Milliseconds(),
		CorrelationID:        req.CorrelationID,
	}))
	res.Events = rn.events
	res.Lifecycle = rn.lifecycle

	rn.logger.Info("resolution completed",
		"base", base.Ref().String(),
		"patches", len(req.Patches),
		"hash", res.ResolvedHash,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// validate resolves the base profile and statically checks every patch.
func (r *Resolver) validate(ctx context.Context, req Request) (contract.Contract, error) {
	if err := ctx.Err(); err != nil {
		return contract.Contract{}, fmt.Errorf("resolution interrupted: %w", err)
	}

	base, err := r.factory.Resolve(req.Base)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("resolve base profile: %w", err)
	}

	origin := base.Ref()
	for i, p := range req.Patches {
		subject := overlayID(p, i)
		errs := compiler.ValidatePatch(p)
		if ve := compiler.CheckExtends(p, origin); ve != nil {
			errs = append(errs, *ve)
		}
		if len(errs) == 0 {
			continue
		}
		msg := errs[0].Error()
		if len(errs) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
		}
		return contract.Contract{}, contract.NewValidation(subject, errs[0].Field, msg)
	}
	return base, nil
}

// merge folds the patches over base.
func (r *Resolver) merge(ctx context.Context, rn *run, base contract.Contract) (*Result, error) {
	req := rn.req
	origin := base.Ref()

	current, err := r.merger.Apply(base, contract.Identity())
	if err != nil {
		return nil, fmt.Errorf("establish base: %w", err)
	}

	hashes := make([]string, 0, len(req.Patches))
	var refs []contract.OverlayRef
	for i, p := range req.Patches {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolution interrupted before overlay %d: %w", i, err)
		}

		h, err := p.Hash()
		if err != nil {
			return nil, fmt.Errorf("hash overlay %d: %w", i, err)
		}
		next, err := r.merger.ApplyFrom(origin, current, p)
		if err != nil {
			var cerr *contract.Error
			if p.Name == "" && errors.As(err, &cerr) {
				cerr.Subject = overlayID(p, i)
			}
			return nil, err
		}
		rn.logger.Debug("overlay applied", "overlay", overlayID(p, i), "index", i, "hash", h)

		hashes = append(hashes, h)
		if req.Options.IncludeOverlayRefs {
			version := p.TargetVersion
			if version == "" {
				version = next.Version
			}
			refs = append(refs, contract.OverlayRef{
				ID:         overlayID(p, i),
				Version:    version,
				Hash:       h,
				Source:     p.Source,
				Scope:      p.Scope,
				OrderIndex: i,
			})
		}
		current = next
	}

	resolved, err := current.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash resolved contract: %w", err)
	}
	build, err := buildInfo(origin, hashes, req.Options)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:         rn.id,
		CorrelationID: req.CorrelationID,
		Base:          base,
		Contract:      current,
		ResolvedHash:  resolved,
		PatchHashes:   hashes,
		OverlayRefs:   refs,
		Build:         build,
	}
	if req.Options.IncludeDiff {
		d := diff.Compute(base, current)
		res.Diff = &d
		res.DiffMarkdown = d.Markdown()
	}
	return res, nil
}

// buildInfo hashes the exact inputs of a run.
func buildInfo(origin contract.ProfileRef, hashes []string, opts Options) (contract.ResolverBuild, error) {
	params := ir.Object{
		"base_ref":       origin.Object(),
		"patch_hashes":   ir.Strings(hashes...),
		"engine_version": ir.String(ir.EngineVersion),
		"options": ir.Object{
			"include_diff":         ir.Bool(opts.IncludeDiff),
			"include_overlay_refs": ir.Bool(opts.IncludeOverlayRefs),
		},
	}
	h, err := ir.Hash(ir.DomainParams, params)
	if err != nil {
		return contract.ResolverBuild{}, fmt.Errorf("hash resolve parameters: %w", err)
	}
	return contract.ResolverBuild{EngineVersion: ir.EngineVersion, BuildHash: h}, nil
}

func overlayID(p contract.Patch, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("overlay-%d", i)
}
