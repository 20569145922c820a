// Package contract defines the documents the resolver works on: base and
// resolved Contracts, override Patches, and the audit records produced while
// applying them (OverlayRef, ResolverBuild).
//
// Contracts and patches have a closed top-level schema (Fields). Unknown
// fields are rejected when a document is parsed, never probed at merge time.
// Nested bodies (algorithm, behavior, resources, io, metadata) are opaque
// ir.Objects that the resolver only merges structurally.
//
// All values here are immutable by convention: constructors and accessors
// return deep copies, and every merge step produces a new Contract.
package contract
