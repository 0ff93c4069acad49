// Package version handles SDK version identifiers: parsing comma-separated
// version lists, semantic-version ordering and detection of pairs that
// straddle a known breaking-change boundary.
//
// Versions are kept as the plain strings users type (e.g. "0.41.1"). A
// leading "v" is accepted. Ordering is delegated to golang.org/x/mod/semver,
// which requires the "v" form, so every comparison goes through Canonical.
package version

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultBoundary is the first version of the revisioned question protocol.
// Producers and consumers on opposite sides of it cannot exchange questions.
const DefaultBoundary = "2.0.0"

// ErrInvalidVersion is returned for identifiers that are not semantic versions.
var ErrInvalidVersion = errors.New("invalid semantic version")

// Defaults lists every released SDK version checked when no explicit list is
// given, newest first. 0.16.0 is the first release installable with poetry.
var Defaults = []string{
	"0.41.1", "0.41.0",
	"0.40.2", "0.40.1", "0.40.0",
	"0.39.0",
	"0.38.1", "0.38.0",
	"0.37.0", "0.36.0", "0.35.0",
	"0.34.1", "0.34.0",
	"0.33.0", "0.32.0", "0.31.0", "0.30.0",
	"0.29.11", "0.29.10", "0.29.9", "0.29.8", "0.29.7", "0.29.6",
	"0.29.5", "0.29.4", "0.29.3", "0.29.2", "0.29.1", "0.29.0",
	"0.28.2", "0.28.1", "0.28.0",
	"0.27.3", "0.27.2", "0.27.1", "0.27.0",
	"0.26.2", "0.26.1", "0.26.0",
	"0.25.0",
	"0.24.1", "0.24.0",
	"0.23.6", "0.23.5", "0.23.4", "0.23.3", "0.23.2", "0.23.1", "0.23.0",
	"0.22.1", "0.22.0",
	"0.21.0", "0.20.0", "0.19.0",
	"0.18.2", "0.18.1", "0.18.0",
	"0.17.0", "0.16.0",
}

// Canonical returns the "vMAJOR.MINOR.PATCH" form of v.
func Canonical(v string) (string, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVersion)
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return semver.Canonical(s), nil
}

// IsValid reports whether v is a semantic version (with or without "v").
func IsValid(v string) bool {
	_, err := Canonical(v)
	return err == nil
}

// Compare returns -1, 0 or 1 as a is lower than, equal to or greater than b.
func Compare(a, b string) (int, error) {
	ca, err := Canonical(a)
	if err != nil {
		return 0, err
	}
	cb, err := Canonical(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(ca, cb), nil
}

// AtLeast reports whether v >= min.
func AtLeast(v, min string) (bool, error) {
	c, err := Compare(v, min)
	if err != nil {
		return false, err
	}
	return c >= 0, nil
}

// ParseList splits a comma-separated version list. An empty string yields
// the defaults. Blank entries are dropped; every entry must be valid.
func ParseList(csv string) ([]string, error) {
	if strings.TrimSpace(csv) == "" {
		return append([]string(nil), Defaults...), nil
	}

	var versions []string
	for _, raw := range strings.Split(csv, ",") {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if !IsValid(v) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return append([]string(nil), Defaults...), nil
	}
	return versions, nil
}

// ParseBranchOverrides parses "0.42.0=release/0.42.0,1.0.0=main" into a map
// of untagged version -> branch to check out instead of the version tag.
func ParseBranchOverrides(csv string) (map[string]string, error) {
	overrides := map[string]string{}
	if strings.TrimSpace(csv) == "" {
		return overrides, nil
	}

	for _, raw := range strings.Split(csv, ",") {
		element := strings.TrimSpace(raw)
		if element == "" {
			continue
		}
		v, branch, ok := strings.Cut(element, "=")
		v, branch = strings.TrimSpace(v), strings.TrimSpace(branch)
		if !ok || v == "" || branch == "" {
			return nil, fmt.Errorf("invalid branch override %q: want VERSION=BRANCH", element)
		}
		overrides[v] = branch
	}
	return overrides, nil
}

// Contains reports whether versions holds v, comparing semantically so that
// "0.40.0" and "v0.40.0" are the same version.
func Contains(versions []string, v string) bool {
	cv, err := Canonical(v)
	for _, candidate := range versions {
		if candidate == v {
			return true
		}
		if err != nil {
			continue
		}
		if cc, cerr := Canonical(candidate); cerr == nil && cc == cv {
			return true
		}
	}
	return false
}
