package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/ir"
	"github.com/roach88/overlay/internal/lifecycle"
)

// WriteRun persists a run with its lifecycle, envelopes and overlay refs
// in one transaction.
//
// The run's lifecycle is checked first; a run with any violation is
// refused with an INVARIANT_VIOLATION error and nothing is written.
// Rewriting an existing run is a no-op (ON CONFLICT DO NOTHING).
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	if err := checkRun(run); err != nil {
		return err
	}

	var contractJSON sql.NullString
	if run.Contract != nil {
		data, err := ir.MarshalCanonical(run.Contract.Object())
		if err != nil {
			return fmt.Errorf("write run: marshal contract: %w", err)
		}
		contractJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, status, stage, base_profile, base_version, correlation_id, patch_count,
		 resolved_hash, engine_version, build_hash, duration_ms, error, contract)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.ID,
		string(run.Status),
		run.Stage,
		run.Base.Profile,
		run.Base.Version,
		run.CorrelationID,
		run.PatchCount,
		run.ResolvedHash,
		run.Build.EngineVersion,
		run.Build.BuildHash,
		run.DurationMS,
		run.Error,
		contractJSON,
	)
	if err != nil {
		return fmt.Errorf("write run: insert run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write run: rows affected: %w", err)
	} else if n == 0 {
		return nil
	}

	for _, ev := range run.Lifecycle {
		if err := insertLifecycle(ctx, tx, ev); err != nil {
			return fmt.Errorf("write run: %w", err)
		}
	}
	for _, env := range run.Events {
		if err := insertEnvelope(ctx, tx, env); err != nil {
			return fmt.Errorf("write run: %w", err)
		}
	}
	for _, ref := range run.OverlayRefs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO overlay_refs
			(run_id, order_index, overlay_id, version, content_hash, source, scope)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, run.ID, ref.OrderIndex, ref.ID, ref.Version, ref.Hash, ref.Source, string(ref.Scope))
		if err != nil {
			return fmt.Errorf("write run: insert overlay ref %d: %w", ref.OrderIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

func checkRun(run Run) error {
	if run.ID == "" {
		return contract.NewValidation("run", "run_id", "run id is required")
	}
	if run.Status != StatusCompleted && run.Status != StatusFailed {
		return contract.NewValidation(run.ID, "status", fmt.Sprintf("invalid status %q", run.Status))
	}
	for _, ev := range run.Lifecycle {
		if ev.RunID != run.ID {
			return contract.NewValidation(run.ID, "lifecycle",
				fmt.Sprintf("event seq %d belongs to run %q", ev.Seq, ev.RunID))
		}
	}

	ok, violations, err := lifecycle.ValidateSequence(run.Lifecycle)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	if !ok {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = fmt.Sprintf("%s at seq %d", v.Rule, v.Seq)
		}
		return contract.NewInvariantViolation(run.ID, "refusing to persist run: "+strings.Join(msgs, "; "))
	}
	return nil
}

// AppendEvent appends one lifecycle event after checking it against the
// run's stored history. An event that breaks a rule is not written and its
// violation is returned.
func (s *Store) AppendEvent(ctx context.Context, ev lifecycle.Event) (*lifecycle.Violation, error) {
	history, err := s.ReadRunEvents(ctx, ev.RunID)
	if err != nil {
		return nil, err
	}
	ok, v, err := lifecycle.CheckInvariant(ev, history)
	if err != nil {
		return nil, err
	}
	if !ok {
		return v, nil
	}

	if err := insertLifecycle(ctx, s.db, ev); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	return nil, nil
}

// Publish records a bus envelope. A second envelope with the same run id
// and topic is ignored.
//
// Store implements event.Publisher.
func (s *Store) Publish(ctx context.Context, env event.Envelope) error {
	if err := insertEnvelope(ctx, s.db, env); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLifecycle(ctx context.Context, db execer, ev lifecycle.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO lifecycle_events (run_id, seq, type, at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, ev.RunID, ev.Seq, string(ev.Type), ev.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert lifecycle event %s#%d: %w", ev.RunID, ev.Seq, err)
	}
	return nil
}

func insertEnvelope(ctx context.Context, db execer, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", env.Topic, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO bus_events (run_id, topic, envelope)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, topic) DO NOTHING
	`, env.RunID, string(env.Topic), string(data))
	if err != nil {
		return fmt.Errorf("insert envelope %s: %w", env.Topic, err)
	}
	return nil
}
