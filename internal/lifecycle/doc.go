// Package lifecycle enforces ordering invariants over the validation and
// merge events of a resolution run.
//
// Events are scoped by run id. For each run the checker tracks which event
// types have been seen, never how many times, and evaluates four rules in
// a fixed order:
//
//	validation_start_required      passed/failed need a prior validation_started
//	validation_terminal_exclusive  passed and failed never both occur
//	merge_start_required           merge_completed needs a prior merge_started
//	no_merge_after_failure         merge_completed never follows validation_failed
//
// The first failing rule is reported, so each event yields at most one
// Violation. ValidateSequence (batch audit) and CheckInvariant (incremental
// gate) share the same evaluation and agree on every history.
//
// Violations are values. Only malformed input (empty run id, unknown event
// type) is returned as an error.
package lifecycle
