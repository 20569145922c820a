// Package ir provides the value model shared by contracts, patches and diffs.
//
// Contract bodies are opaque to the resolver beyond structural merge, so they
// are carried as a small sealed set of value types rather than as Go structs.
// This package imports nothing internal; every other package builds on it.
//
// Key constraints:
//   - NO float values anywhere - numbers are int64 (floats break hash determinism)
//   - Null is representable for diagnostics but never canonically marshaled
//   - Object keys are ordered by UTF-16 code units when serialized (RFC 8785)
//   - All hashing goes through MarshalCanonical with a domain prefix
package ir
