// Package resolver composes a final contract from a base profile and an
// ordered list of patches.
//
// A run has two lifecycle phases. Validation resolves the base profile and
// checks every patch statically before anything is merged. Merge folds the
// patches over the base in input order, hashes the result and optionally
// diffs it against the base.
//
//	validation_started -> validation_passed -> merge_started -> merge_completed
//	validation_started -> validation_failed
//
// Each run carries its lifecycle events and bus envelopes as data. Callers
// publish or persist them; the resolver owns no transport.
//
// Runs share no mutable state. A Resolver may serve concurrent Resolve
// calls.
package resolver
