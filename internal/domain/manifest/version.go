package manifest

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonical adds the "v" prefix x/mod/semver requires. Manifests are
// written without it.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ValidVersion reports whether v is a semantic version, with or without "v".
func ValidVersion(v string) bool {
	return semver.IsValid(canonical(v))
}

// CompareVersions returns -1, 0 or +1. Invalid versions sort before valid ones.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// CompatibleWith reports whether the manifest accepts the given host version.
func (m Manifest) CompatibleWith(hostVersion string) bool {
	if hostVersion == "" {
		return true
	}
	if min := m.Engines.MinHostVersion; min != "" && CompareVersions(hostVersion, min) < 0 {
		return false
	}
	if max := m.Engines.MaxHostVersion; max != "" && CompareVersions(hostVersion, max) > 0 {
		return false
	}
	return true
}

// NewerThan reports whether m is a strictly later release than version.
func (m Manifest) NewerThan(version string) bool {
	return CompareVersions(m.Version, version) > 0
}
