// Package version implements lurock's version algebra (spec §4.A): parsing
// semantic versions and constraints, matching, intersecting, and
// translating between the registry's own version dialect and SemVer.
//
// Version comparison is delegated to github.com/Masterminds/semver/v3; the
// Constraint variants themselves are not expressible through that library's
// own constraint language (notably AnyPatch and the registry round trip), so
// they are a small tagged union modeled directly on golang-dep's
// constraints.go.
package version

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/lurock/lurock/internal/lurockerrors"
)

// Version is an immutable (major, minor, patch) triple.
type Version struct {
	major, minor, patch uint64
}

// New builds a Version directly from its components.
func New(major, minor, patch uint64) Version {
	return Version{major: major, minor: minor, patch: patch}
}

func (v Version) Major() uint64 { return v.major }
func (v Version) Minor() uint64 { return v.minor }
func (v Version) Patch() uint64 { return v.patch }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

// semver returns the Masterminds/semver representation, used internally for
// comparison.
func (v Version) semver() *semver.Version {
	sv, _ := semver.StrictNewVersion(v.String())
	return sv
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than o.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

// Less reports whether v sorts before o under the natural triple order.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o are the same triple.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// ParseVersion accepts "M", "M.N", or "M.N.P" with missing parts defaulting
// to 0; it rejects non-numeric components.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, lurockerrors.NewInvalidVersion(s, "empty version string")
	}

	parts := strings.SplitN(s, ".", 3)
	if len(parts) > 3 {
		return Version{}, lurockerrors.NewInvalidVersion(s, "too many components")
	}

	nums := [3]uint64{0, 0, 0}
	for i, p := range parts {
		if p == "" {
			return Version{}, lurockerrors.NewInvalidVersion(s, "empty component")
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, lurockerrors.NewInvalidVersion(s, fmt.Sprintf("component %q is not numeric", p))
		}
		nums[i] = n
	}

	return Version{major: nums[0], minor: nums[1], patch: nums[2]}, nil
}

// MustParseVersion is ParseVersion but panics on error; only ever used for
// compile-time-known literals in tests and constant tables.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Zero is Version(0, 0, 0).
var Zero = Version{}

// SortDescending sorts versions from highest to lowest (the "highest"
// resolution strategy).
func SortDescending(vs []Version) {
	sortVersions(vs, true)
}

// SortAscending sorts versions from lowest to highest (the "lowest"
// resolution strategy).
func SortAscending(vs []Version) {
	sortVersions(vs, false)
}

func sortVersions(vs []Version, descending bool) {
	// sort.SliceStable: equal versions keep their input order. The
	// resolver does not use this; it orders candidates, revision
	// tie-break included, with its own sortEntries.
	sort.SliceStable(vs, func(i, j int) bool {
		if descending {
			return vs[j].Less(vs[i])
		}
		return vs[i].Less(vs[j])
	})
}
