package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/lifecycle"
)

const runColumns = `run_id, status, stage, base_profile, base_version, correlation_id, patch_count,
	resolved_hash, engine_version, build_hash, duration_ms, error, contract`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run          Run
		status       string
		contractJSON sql.NullString
	)
	err := row.Scan(
		&run.ID, &status, &run.Stage, &run.Base.Profile, &run.Base.Version, &run.CorrelationID,
		&run.PatchCount, &run.ResolvedHash, &run.Build.EngineVersion, &run.Build.BuildHash,
		&run.DurationMS, &run.Error, &contractJSON,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = Status(status)

	if contractJSON.Valid {
		var c contract.Contract
		if err := json.Unmarshal([]byte(contractJSON.String), &c); err != nil {
			return Run{}, fmt.Errorf("decode contract of run %s: %w", run.ID, err)
		}
		run.Contract = &c
	}
	return run, nil
}

// ReadRun returns a run with its lifecycle, envelopes and overlay refs.
// Returns a NOT_FOUND error if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, contract.NewNotFound(runID, "no such run")
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}

	if run.Lifecycle, err = s.ReadRunEvents(ctx, runID); err != nil {
		return Run{}, err
	}
	if run.Events, err = s.ReadEnvelopes(ctx, runID); err != nil {
		return Run{}, err
	}
	if run.OverlayRefs, err = s.ReadOverlayRefs(ctx, runID); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns every run in insertion order, without child records.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY pos ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRunEvents returns a run's lifecycle events ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadRunEvents(ctx context.Context, runID string) ([]lifecycle.Event, error) {
	return s.readEvents(ctx, `
		SELECT run_id, seq, type, at FROM lifecycle_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadAllEvents returns every lifecycle event in append order.
func (s *Store) ReadAllEvents(ctx context.Context) ([]lifecycle.Event, error) {
	return s.readEvents(ctx, `
		SELECT run_id, seq, type, at FROM lifecycle_events
		ORDER BY pos ASC
	`)
}

func (s *Store) readEvents(ctx context.Context, query string, args ...any) ([]lifecycle.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle events: %w", err)
	}
	defer rows.Close()

	events := []lifecycle.Event{}
	for rows.Next() {
		var (
			ev  lifecycle.Event
			typ string
			at  string
		)
		if err := rows.Scan(&ev.RunID, &ev.Seq, &typ, &at); err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}
		ev.Type = lifecycle.EventType(typ)
		if ev.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse time of %s#%d: %w", ev.RunID, ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lifecycle events: %w", err)
	}
	return events, nil
}

// ReadEnvelopes returns a run's bus envelopes in publish order.
func (s *Store) ReadEnvelopes(ctx context.Context, runID string) ([]event.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT envelope FROM bus_events
		WHERE run_id = ?
		ORDER BY pos ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query envelopes: %w", err)
	}
	defer rows.Close()

	envs := []event.Envelope{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		var env event.Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			return nil, fmt.Errorf("decode envelope of run %s: %w", runID, err)
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate envelopes: %w", err)
	}
	return envs, nil
}

// ReadOverlayRefs returns a run's overlay refs by order index.
func (s *Store) ReadOverlayRefs(ctx context.Context, runID string) ([]contract.OverlayRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_index, overlay_id, version, content_hash, source, scope
		FROM overlay_refs
		WHERE run_id = ?
		ORDER BY order_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query overlay refs: %w", err)
	}
	defer rows.Close()

	refs := []contract.OverlayRef{}
	for rows.Next() {
		var (
			ref   contract.OverlayRef
			scope string
		)
		if err := rows.Scan(&ref.OrderIndex, &ref.ID, &ref.Version, &ref.Hash, &ref.Source, &scope); err != nil {
			return nil, fmt.Errorf("scan overlay ref: %w", err)
		}
		ref.Scope = contract.Scope(scope)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overlay refs: %w", err)
	}
	return refs, nil
}

// Audit re-checks every stored lifecycle event in batch mode.
func (s *Store) Audit(ctx context.Context) (bool, []lifecycle.Violation, error) {
	events, err := s.ReadAllEvents(ctx)
	if err != nil {
		return false, nil, err
	}
	return lifecycle.ValidateSequence(events)
}

// AuditRun re-checks one run's stored lifecycle.
func (s *Store) AuditRun(ctx context.Context, runID string) (bool, []lifecycle.Violation, error) {
	events, err := s.ReadRunEvents(ctx, runID)
	if err != nil {
		return false, nil, err
	}
	return lifecycle.ValidateSequence(events)
}
