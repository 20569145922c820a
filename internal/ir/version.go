package ir

// Version constants for the resolver and its canonical encoding.
const (
	// EngineVersion is the resolver engine version reported in ResolverBuild.
	EngineVersion = "0.3.0"

	// CanonicalVersion is the canonical encoding version. Bumping it changes
	// every content hash, so it is part of each hash domain.
	CanonicalVersion = "v1"
)
