package versionit

import (
	"fmt"
	"strings"
)

// Scheme is the versioning scheme a version string is interpreted under.
type Scheme string

const (
	SchemeSemantic  Scheme = "semantic"
	SchemeCalver    Scheme = "calver"
	SchemeTimestamp Scheme = "timestamp"
	SchemeCommit    Scheme = "commit"
	SchemeBuild     Scheme = "build"
	SchemeMonotonic Scheme = "monotonic"
	SchemeDatetime  Scheme = "datetime"
	SchemePattern   Scheme = "pattern"
)

// Schemes lists every supported scheme.
var Schemes = []Scheme{
	SchemeSemantic,
	SchemeCalver,
	SchemeTimestamp,
	SchemeCommit,
	SchemeBuild,
	SchemeMonotonic,
	SchemeDatetime,
	SchemePattern,
}

// ParseScheme converts a scheme name into a Scheme. An empty name selects the
// semantic scheme.
func ParseScheme(name string) (Scheme, error) {
	if name == "" {
		return SchemeSemantic, nil
	}
	s := Scheme(strings.ToLower(name))
	for _, known := range Schemes {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown versioning scheme: %q", name)
}

// BumpKind selects which component of a version is bumped.
type BumpKind string

const (
	BumpMajor BumpKind = "major"
	BumpMinor BumpKind = "minor"
	BumpPatch BumpKind = "patch"
)

// ParseBumpKind converts a bump name into a BumpKind.
func ParseBumpKind(name string) (BumpKind, error) {
	switch BumpKind(strings.ToLower(name)) {
	case BumpMajor:
		return BumpMajor, nil
	case BumpMinor:
		return BumpMinor, nil
	case BumpPatch:
		return BumpPatch, nil
	default:
		return "", fmt.Errorf("invalid bump type: %s. Use major, minor, or patch", name)
	}
}

// Release channels with special handling. Any other non-empty channel name is
// appended verbatim.
const (
	ChannelStable  = "stable"
	ChannelBeta    = "beta"
	ChannelNightly = "nightly"
)

// GitInfo is the read side of a git repository as consumed by version
// generation. Implementations return best-effort values; callers decide
// whether a failure is fatal.
type GitInfo interface {
	CurrentBranch() (string, error)
	CurrentCommitShort() (string, error)
	CurrentCommitFull() (string, error)
	LatestTags() ([]string, error)
	CommitsSince(ref string) ([]string, error)
}
