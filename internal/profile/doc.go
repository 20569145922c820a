// Package profile resolves base profile references to contracts.
//
// A Registry is built once and never modified, so lookups need no locking
// and repeated calls with the same reference always return equal contracts.
// Profiles are authored in CUE; the built-in set is embedded in the binary
// and further profiles can be loaded from a directory.
package profile
