package contract

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Versions are written without the "v" prefix ("1.4.0"); x/mod/semver
// requires it, so it is added before every comparison.
func semverForm(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ValidVersion reports whether v is a full MAJOR.MINOR.PATCH semantic
// version, optionally with prerelease or build suffixes.
func ValidVersion(v string) bool {
	if v == "" || strings.HasPrefix(v, "v") {
		return false
	}
	sv := semverForm(v)
	if !semver.IsValid(sv) {
		return false
	}
	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") == 2
}

// CompareVersions compares two versions by semver precedence.
// Invalid versions sort before valid ones.
func CompareVersions(a, b string) int {
	return semver.Compare(semverForm(a), semverForm(b))
}

// SameVersion reports whether a and b have equal semver precedence.
func SameVersion(a, b string) bool {
	return CompareVersions(a, b) == 0
}
