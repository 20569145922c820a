// Package store provides a SQLite-backed journal of resolution runs.
//
// The journal holds, per run:
//   - Runs: status, base profile, resolved hash, build metadata, contract
//   - Lifecycle events: validation and merge steps, UNIQUE(run_id, seq)
//   - Bus events: requested/completed envelopes, UNIQUE(run_id, topic)
//   - Overlay refs: applied patches in order, UNIQUE(run_id, order_index)
//
// # Invariants
//
// A run whose lifecycle violates an ordering rule is never persisted, and a
// single lifecycle event is appended only if it is valid against the run's
// stored history. Audit re-checks the whole journal in batch mode.
//
// Ordering uses seq (the per-run logical clock), never timestamps. Every
// query orders by run insertion, then seq.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
