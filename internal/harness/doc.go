// Package harness runs conformance scenarios against the resolver.
//
// A scenario is a YAML document naming a base profile, an ordered list of
// patches, the expected outcome and a set of assertions. Run executes it
// end to end: the resolver runs under a lifecycle guard with a fixed run id
// and a step clock, the run is journaled to an in-memory store, and the
// journal is audited before assertions are evaluated.
//
// Supported assertions:
//   - field_equals, field_absent: paths into the resolved contract
//   - lifecycle_order, lifecycle_valid: the recorded lifecycle events
//   - overlay_count: overlay refs recorded by a completed run
//   - diff_contains: changes in the advisory diff (requires include_diff)
//   - stored_run: the run as read back from the journal
//
// RunWithGolden additionally compares a hash-free snapshot of the run
// against testdata/golden/{name}.golden.
package harness
