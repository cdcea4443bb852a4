// Package versionit bumps, composes and publishes version strings for CI
// pipelines.
package versionit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/blang/semver"
)

const (
	timestampLayout = "20060102150405"
	datetimeLayout  = "2006-01-02T15:04:05"

	// unknownValue replaces git-derived values that could not be resolved.
	unknownValue = "unknown"
)

// Version is a version value under a fixed scheme. The scheme is chosen when
// the value is parsed and never changes; bump operations only mutate the
// payload that belongs to that scheme.
type Version struct {
	scheme  Scheme
	channel string

	semver  semver.Version
	calver  [3]uint32 // year, month, day
	build   [4]uint32 // major, minor, patch, build
	counter uint64
	text    string // timestamp, datetime, commit and pattern payloads

	git GitInfo
	now func() time.Time
}

// VersionOption configures a Version at parse time.
type VersionOption func(*Version)

// WithChannel sets the release channel appended by String.
func WithChannel(channel string) VersionOption {
	return func(v *Version) {
		v.channel = channel
	}
}

// WithGit sets the repository used to regenerate commit versions.
func WithGit(git GitInfo) VersionOption {
	return func(v *Version) {
		v.git = git
	}
}

// WithClock overrides the clock used to regenerate timestamp and datetime
// versions.
func WithClock(now func() time.Time) VersionOption {
	return func(v *Version) {
		v.now = now
	}
}

// Parse interprets text under the given scheme.
//
// Timestamp, datetime and commit versions are generated from the clock or the
// repository when text is empty.
func Parse(text string, scheme Scheme, opts ...VersionOption) (*Version, error) {
	v := &Version{scheme: scheme, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}

	fail := func(err error) (*Version, error) {
		return nil, &ParseError{Scheme: scheme, Input: text, Err: err}
	}

	switch scheme {
	case SchemeSemantic:
		parsed, err := semver.Parse(text)
		if err != nil {
			return fail(err)
		}
		v.semver = parsed

	case SchemeCalver:
		parts := strings.Split(text, ".")
		if len(parts) < 2 {
			return fail(errors.New("calver version must have at least YY.MM"))
		}
		v.calver[2] = 1
		for i := 0; i < len(parts) && i < 3; i++ {
			n, err := parseComponent(parts[i])
			if err != nil {
				return fail(err)
			}
			v.calver[i] = n
		}

	case SchemeBuild:
		parts := strings.Split(text, ".")
		if len(parts) != 4 {
			return fail(errors.New("build version must be in format major.minor.patch.build"))
		}
		for i, part := range parts {
			n, err := parseComponent(part)
			if err != nil {
				return fail(err)
			}
			v.build[i] = n
		}

	case SchemeMonotonic:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return fail(err)
		}
		v.counter = n

	case SchemeTimestamp:
		v.text = text
		if text == "" {
			v.text = v.clock().Format(timestampLayout)
		}

	case SchemeDatetime:
		v.text = text
		if text == "" {
			v.text = v.clock().Format(datetimeLayout)
		}

	case SchemeCommit:
		v.text = text
		if text == "" {
			if v.git == nil {
				return fail(errors.New("no repository available to resolve the current commit"))
			}
			commit, err := v.git.CurrentCommitShort()
			if err != nil {
				return fail(fmt.Errorf("resolving current commit: %w", err))
			}
			v.text = commit
		}

	case SchemePattern:
		v.text = text

	default:
		return fail(fmt.Errorf("unknown versioning scheme %q", scheme))
	}

	return v, nil
}

func parseComponent(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric component %q", s)
	}
	return uint32(n), nil
}

// Scheme returns the scheme the version was parsed under.
func (v *Version) Scheme() Scheme {
	return v.scheme
}

// Channel returns the release channel, empty when none is set.
func (v *Version) Channel() string {
	return v.channel
}

// Bump applies the bump selected by kind. It returns ErrVersionOverflow,
// leaving v unchanged, when the bumped component is already at its maximum.
func (v *Version) Bump(kind BumpKind) error {
	if v.atMaximum(kind) {
		return fmt.Errorf("bumping %s of %s: %w", kind, v.Base(), ErrVersionOverflow)
	}
	switch kind {
	case BumpMajor:
		v.BumpMajor()
	case BumpMinor:
		v.BumpMinor()
	case BumpPatch:
		v.BumpPatch()
	default:
		return fmt.Errorf("invalid bump type: %s. Use major, minor, or patch", kind)
	}
	return nil
}

// atMaximum reports whether the component bumped by kind cannot grow.
func (v *Version) atMaximum(kind BumpKind) bool {
	var i int
	switch kind {
	case BumpMajor:
		i = 0
	case BumpMinor:
		i = 1
	case BumpPatch:
		i = 2
	default:
		return false
	}

	switch v.scheme {
	case SchemeSemantic:
		return [3]uint64{v.semver.Major, v.semver.Minor, v.semver.Patch}[i] == math.MaxUint64
	case SchemeCalver:
		return v.calver[i] == math.MaxUint32
	case SchemeBuild:
		return v.build[i] == math.MaxUint32
	case SchemeMonotonic:
		return v.counter == math.MaxUint64
	}
	return false
}

// BumpMajor bumps the most significant component of the version. Unlike
// Bump it does not check for overflow; a component at its maximum wraps to 0.
func (v *Version) BumpMajor() {
	switch v.scheme {
	case SchemeSemantic:
		v.semver.Major++
		v.semver.Minor = 0
		v.semver.Patch = 0
		v.clearSemverSuffixes()
	case SchemeCalver:
		v.calver[0]++
		v.calver[1] = 1
		v.calver[2] = 1
	case SchemeBuild:
		v.build[0]++
		v.build[1] = 0
		v.build[2] = 0
	default:
		v.bumpOpaque()
	}
}

// BumpMinor bumps the second component of the version.
func (v *Version) BumpMinor() {
	switch v.scheme {
	case SchemeSemantic:
		v.semver.Minor++
		v.semver.Patch = 0
		v.clearSemverSuffixes()
	case SchemeCalver:
		v.calver[1]++
		v.calver[2] = 1
	case SchemeBuild:
		v.build[1]++
		v.build[2] = 0
	default:
		v.bumpOpaque()
	}
}

// BumpPatch bumps the third component of the version. For build versions
// the build number is reset as well.
func (v *Version) BumpPatch() {
	switch v.scheme {
	case SchemeSemantic:
		v.semver.Patch++
		v.clearSemverSuffixes()
	case SchemeCalver:
		v.calver[2]++
	case SchemeBuild:
		v.build[2]++
		v.build[3] = 0
	default:
		v.bumpOpaque()
	}
}

// bumpOpaque handles schemes where every bump kind behaves the same.
func (v *Version) bumpOpaque() {
	switch v.scheme {
	case SchemeMonotonic:
		v.counter++
	case SchemeTimestamp:
		v.text = v.clock().Format(timestampLayout)
	case SchemeDatetime:
		v.text = v.clock().Format(datetimeLayout)
	case SchemeCommit:
		v.text = v.currentCommit()
	case SchemePattern:
		// TODO: replace the "-updated" marker once pattern versions get a
		// template syntax describing which part to increment.
		v.text += "-updated"
	}
}

func (v *Version) clearSemverSuffixes() {
	v.semver.Pre = nil
	v.semver.Build = nil
}

// SetPrerelease replaces the prerelease of a semantic version. Identifiers
// rejected by the semver grammar clear the prerelease instead.
func (v *Version) SetPrerelease(pre string) {
	if v.scheme != SchemeSemantic {
		return
	}
	v.semver.Pre = nil
	if pre == "" {
		return
	}
	var parts []semver.PRVersion
	for _, id := range strings.Split(pre, ".") {
		pr, err := semver.NewPRVersion(id)
		if err != nil {
			logger.Debug("discarding invalid prerelease", "prerelease", pre, "err", err)
			return
		}
		parts = append(parts, pr)
	}
	v.semver.Pre = parts
}

// SetBuild replaces the build metadata of a semantic version. Identifiers
// rejected by the semver grammar clear the metadata instead.
func (v *Version) SetBuild(build string) {
	if v.scheme != SchemeSemantic {
		return
	}
	v.semver.Build = nil
	if build == "" {
		return
	}
	var parts []string
	for _, id := range strings.Split(build, ".") {
		b, err := semver.NewBuildVersion(id)
		if err != nil {
			logger.Debug("discarding invalid build metadata", "build", build, "err", err)
			return
		}
		parts = append(parts, b)
	}
	v.semver.Build = parts
}

// Base returns the version without any channel suffix.
func (v *Version) Base() string {
	switch v.scheme {
	case SchemeSemantic:
		return v.semver.String()
	case SchemeCalver:
		return fmt.Sprintf("%02d.%02d.%02d", v.calver[0], v.calver[1], v.calver[2])
	case SchemeBuild:
		return fmt.Sprintf("%d.%d.%d.%d", v.build[0], v.build[1], v.build[2], v.build[3])
	case SchemeMonotonic:
		return strconv.FormatUint(v.counter, 10)
	default:
		return v.text
	}
}

// String returns the version with its channel suffix applied.
func (v *Version) String() string {
	base := v.Base()

	switch v.channel {
	case "", ChannelStable:
		return base
	case ChannelBeta:
		if v.scheme != SchemeSemantic {
			return base + "-beta"
		}
		if len(v.semver.Pre) > 0 {
			return base
		}
		return base + "-beta.1"
	case ChannelNightly:
		if v.scheme == SchemeTimestamp || v.scheme == SchemeCommit {
			return base
		}
		return base + "-nightly"
	default:
		return base + "-" + v.channel
	}
}

func (v *Version) clock() time.Time {
	if v.now == nil {
		return time.Now().UTC()
	}
	return v.now().UTC()
}

func (v *Version) currentCommit() string {
	if v.git == nil {
		return unknownValue
	}
	commit, err := v.git.CurrentCommitShort()
	if err != nil || commit == "" {
		logger.Debug("could not resolve current commit", "err", err)
		return unknownValue
	}
	return commit
}
