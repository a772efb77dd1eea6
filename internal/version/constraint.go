package version

import (
	"strings"

	"github.com/lurock/lurock/internal/lurockerrors"
)

// ConstraintKind tags the variant a Constraint holds, modeled directly on
// golang-dep's ConstraintType (flags.go) but closed to the six variants this
// spec names.
type ConstraintKind uint8

const (
	Exact ConstraintKind = iota
	Caret
	Tilde
	GreaterOrEqual
	LessThan
	AnyPatch
)

// Constraint is a predicate over Versions expressed as a small tagged
// variant (spec §3). It is immutable once parsed or constructed.
type Constraint struct {
	kind ConstraintKind
	base Version
}

func NewExact(v Version) Constraint         { return Constraint{kind: Exact, base: v} }
func NewCaret(v Version) Constraint         { return Constraint{kind: Caret, base: v} }
func NewTilde(v Version) Constraint         { return Constraint{kind: Tilde, base: v} }
func NewGreaterOrEqual(v Version) Constraint { return Constraint{kind: GreaterOrEqual, base: v} }
func NewLessThan(v Version) Constraint      { return Constraint{kind: LessThan, base: v} }
func NewAnyPatch(v Version) Constraint      { return Constraint{kind: AnyPatch, base: v} }

func (c Constraint) Kind() ConstraintKind { return c.kind }
func (c Constraint) Base() Version        { return c.base }

// String renders the constraint back to parseable text (round-trip with
// ParseConstraint, spec testable property 3).
func (c Constraint) String() string {
	switch c.kind {
	case Exact:
		return "=" + c.base.String()
	case Caret:
		return "^" + c.base.String()
	case Tilde:
		return "~" + c.base.String()
	case GreaterOrEqual:
		return ">=" + c.base.String()
	case LessThan:
		return "<" + c.base.String()
	case AnyPatch:
		return formatAnyPatch(c.base)
	default:
		return "*"
	}
}

func formatAnyPatch(v Version) string {
	return itoa(v.major) + "." + itoa(v.minor) + ".x"
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ParseConstraint recognizes prefixes `=`/bare (Exact), `^` (Caret), `~`
// (Tilde), `>=` (GreaterOrEqual), `<` (LessThan), and `M.N.x`/`M.N.*`
// (AnyPatch). Whitespace is trimmed; an empty or `*` constraint produces
// GreaterOrEqual(0.0.0).
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return NewGreaterOrEqual(Zero), nil
	}

	if anyPatch, ok := parseAnyPatch(s); ok {
		v, err := ParseVersion(anyPatch)
		if err != nil {
			return Constraint{}, lurockerrors.NewInvalidConstraint(s, err.Error())
		}
		return NewAnyPatch(v), nil
	}

	switch {
	case strings.HasPrefix(s, ">="):
		v, err := ParseVersion(strings.TrimSpace(s[2:]))
		if err != nil {
			return Constraint{}, lurockerrors.NewInvalidConstraint(s, err.Error())
		}
		return NewGreaterOrEqual(v), nil
	case strings.HasPrefix(s, "<"):
		v, err := ParseVersion(strings.TrimSpace(s[1:]))
		if err != nil {
			return Constraint{}, lurockerrors.NewInvalidConstraint(s, err.Error())
		}
		return NewLessThan(v), nil
	case strings.HasPrefix(s, "^"):
		v, err := ParseVersion(strings.TrimSpace(s[1:]))
		if err != nil {
			return Constraint{}, lurockerrors.NewInvalidConstraint(s, err.Error())
		}
		return NewCaret(v), nil
	case strings.HasPrefix(s, "~"):
		v, err := ParseVersion(strings.TrimSpace(s[1:]))
		if err != nil {
			return Constraint{}, lurockerrors.NewInvalidConstraint(s, err.Error())
		}
		return NewTilde(v), nil
	case strings.HasPrefix(s, "="):
		v, err := ParseVersion(strings.TrimSpace(s[1:]))
		if err != nil {
			return Constraint{}, lurockerrors.NewInvalidConstraint(s, err.Error())
		}
		return NewExact(v), nil
	default:
		v, err := ParseVersion(s)
		if err != nil {
			return Constraint{}, lurockerrors.NewInvalidConstraint(s, err.Error())
		}
		return NewExact(v), nil
	}
}

// parseAnyPatch recognizes "M.N.x" or "M.N.*" and rewrites it to "M.N.0" for
// ParseVersion, reporting whether the shape matched.
func parseAnyPatch(s string) (string, bool) {
	if !strings.HasSuffix(s, ".x") && !strings.HasSuffix(s, ".*") {
		return "", false
	}
	prefix := s[:len(s)-2]
	parts := strings.Split(prefix, ".")
	if len(parts) != 2 {
		return "", false
	}
	return prefix + ".0", true
}

// Satisfies reports whether v satisfies c per the variant's predicate (spec
// §4.A).
//
// Open question resolved per SPEC_FULL.md/DESIGN.md: Caret requires the same
// major version only (spec's explicit permissive reading for 0.x bases), not
// the npm-style "same leading nonzero component".
func Satisfies(v Version, c Constraint) bool {
	switch c.kind {
	case Exact:
		return v.Equal(c.base)
	case Caret:
		return v.Major() == c.base.Major() && !v.Less(c.base)
	case Tilde:
		return v.Major() == c.base.Major() && v.Minor() == c.base.Minor() && !v.Less(c.base)
	case GreaterOrEqual:
		return !v.Less(c.base)
	case LessThan:
		return v.Less(c.base)
	case AnyPatch:
		return v.Major() == c.base.Major() && v.Minor() == c.base.Minor()
	default:
		return false
	}
}

// IntersectCompatible is a conservative sufficient-condition check used by
// the strict-mode conflict checker (spec §4.I). It never produces a false
// "incompatible" verdict: only Exact/Exact, Caret/Caret, and Tilde/Tilde
// pairs are ever flagged incompatible; everything touching GreaterOrEqual,
// LessThan, or AnyPatch is treated as potentially compatible.
func IntersectCompatible(a, b Constraint) bool {
	switch {
	case a.kind == Exact && b.kind == Exact:
		return a.base.Equal(b.base)
	case a.kind == Caret && b.kind == Caret:
		return a.base.Major() == b.base.Major()
	case a.kind == Tilde && b.kind == Tilde:
		return a.base.Major() == b.base.Major() && a.base.Minor() == b.base.Minor()
	default:
		return true
	}
}
