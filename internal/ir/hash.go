package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The canonical encoding
// version is part of every domain so an encoding change can never collide
// with hashes produced by the previous one.
const (
	DomainContract = "onex/contract/" + CanonicalVersion
	DomainPatch    = "onex/patch/" + CanonicalVersion
	DomainParams   = "onex/resolve-params/" + CanonicalVersion
	DomainValue    = "onex/value/" + CanonicalVersion
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash canonically marshals v and hashes it under domain.
// Two structurally equal values always produce the same hash; construction
// order and map insertion order never affect it.
func Hash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when v is known to be canonical-safe.
func MustHash(domain string, v any) string {
	h, err := Hash(domain, v)
	if err != nil {
		panic(err)
	}
	return h
}

// ValueHash hashes an arbitrary value under DomainValue. The diff uses it to
// recognize a value that moved between paths.
func ValueHash(v Value) (string, error) {
	return Hash(DomainValue, v)
}
