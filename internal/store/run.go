package store

import (
	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/resolver"
)

// Status is the outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one journaled resolution.
type Run struct {
	ID            string                 `json:"run_id"`
	Status        Status                 `json:"status"`
	Stage         string                 `json:"stage"`
	Base          contract.ProfileRef    `json:"base"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	PatchCount    int                    `json:"patch_count"`
	ResolvedHash  string                 `json:"resolved_hash,omitempty"`
	Build         contract.ResolverBuild `json:"resolver_build"`
	DurationMS    int64                  `json:"duration_ms"`
	Error         string                 `json:"error,omitempty"`
	Contract      *contract.Contract     `json:"contract,omitempty"`
	OverlayRefs   []contract.OverlayRef  `json:"overlay_refs,omitempty"`
	Lifecycle     []lifecycle.Event      `json:"lifecycle,omitempty"`
	Events        []event.Envelope       `json:"events,omitempty"`
}

// RunFromResult builds the journal record of a completed run.
func RunFromResult(res *resolver.Result) Run {
	c := res.Contract.Clone()
	return Run{
		ID:            res.RunID,
		Status:        StatusCompleted,
		Stage:         string(resolver.StageMerge),
		Base:          res.Base.Ref(),
		CorrelationID: res.CorrelationID,
		PatchCount:    len(res.PatchHashes),
		ResolvedHash:  res.ResolvedHash,
		Build:         res.Build,
		DurationMS:    res.Duration.Milliseconds(),
		Contract:      &c,
		OverlayRefs:   res.OverlayRefs,
		Lifecycle:     res.Lifecycle,
		Events:        res.Events,
	}
}

// RunFromError builds the journal record of a failed run. The base profile
// and patch count come from the run's requested envelope.
func RunFromError(re *resolver.RunError) Run {
	r := Run{
		ID:        re.RunID,
		Status:    StatusFailed,
		Stage:     string(re.Stage),
		Error:     re.Err.Error(),
		Lifecycle: re.Lifecycle,
		Events:    re.Events,
	}
	for _, env := range re.Events {
		if p, ok := env.Payload.(event.Requested); ok {
			r.Base = contract.ProfileRef{Profile: p.BaseProfile}
			r.PatchCount = p.PatchCount
			r.CorrelationID = p.CorrelationID
		}
	}
	return r
}
