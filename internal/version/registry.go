package version

import (
	"strconv"
	"strings"

	"github.com/lurock/lurock/internal/lurockerrors"
)

// RegistryToSemver translates a registry dialect string of the form
// "<semver-prefix>-<revision>" into a Version, per spec §3:
//
//	"1.2.3-1" -> Version(1,2,3)   (revision 1 is implicit/default)
//	"1.2-3"   -> Version(1,2,3)   (two-part prefix, patch taken from revision)
//
// Any other shape is a best-effort parse, rejected if it does not normalize
// to three numeric components.
func RegistryToSemver(s string) (Version, error) {
	prefix, _, hasRev := cutLastDash(s)
	if !hasRev {
		return ParseVersion(s)
	}

	parts := strings.Split(prefix, ".")
	switch len(parts) {
	case 3:
		return ParseVersion(prefix)
	case 2:
		revisionStr := s[strings.LastIndex(s, "-")+1:]
		revision, err := strconv.ParseUint(revisionStr, 10, 64)
		if err != nil {
			return Version{}, lurockerrors.NewInvalidVersion(s, "non-numeric revision")
		}
		major, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return Version{}, lurockerrors.NewInvalidVersion(s, "non-numeric major")
		}
		minor, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return Version{}, lurockerrors.NewInvalidVersion(s, "non-numeric minor")
		}
		return New(major, minor, revision), nil
	default:
		return Version{}, lurockerrors.NewInvalidVersion(s, "registry prefix must have two or three components")
	}
}

// SemverToRegistry translates a Version back to the registry dialect,
// inverse of RegistryToSemver for well-formed three-part inputs:
// Version(1,2,3) -> "1.2.3-1".
func SemverToRegistry(v Version) string {
	return v.String() + "-1"
}

// RegistryRevision extracts the trailing "-<revision>" integer from a
// registry version string, used by the resolver's Highest-strategy tie
// break (spec §4.F: "when two versions compare equal numerically but differ
// in registry revision, Highest prefers the higher revision"). Returns
// (0, false) when s carries no parseable revision suffix.
func RegistryRevision(s string) (uint64, bool) {
	_, suffix, ok := cutLastDash(s)
	if !ok {
		return 0, false
	}
	rev, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return rev, true
}

// cutLastDash splits s on its last "-" into (prefix, suffix, true), or
// returns (s, "", false) if s has no dash.
func cutLastDash(s string) (string, string, bool) {
	i := strings.LastIndex(s, "-")
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}
