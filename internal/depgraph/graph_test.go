package depgraph

import (
	"strings"
	"testing"

	"github.com/lurock/lurock/internal/version"
)

func anyConstraint() version.Constraint {
	return version.NewGreaterOrEqual(version.Zero)
}

func TestAddDependencyRequiresBothEndpoints(t *testing.T) {
	g := New()
	g.AddNode("a", anyConstraint())
	if err := g.AddDependency("a", "b"); err == nil {
		t.Fatal("expected error adding dependency to nonexistent node")
	}
}

func TestSetResolvedVersionConflict(t *testing.T) {
	g := New()
	g.AddNode("a", anyConstraint())
	if err := g.SetResolvedVersion("a", version.MustParseVersion("1.0.0")); err != nil {
		t.Fatal(err)
	}
	if err := g.SetResolvedVersion("a", version.MustParseVersion("2.0.0")); err == nil {
		t.Fatal("expected error overwriting resolved version with a different one")
	}
	if err := g.SetResolvedVersion("a", version.MustParseVersion("1.0.0")); err != nil {
		t.Errorf("re-setting the same version should not error: %s", err)
	}
}

func TestDetectCyclesNoCycle(t *testing.T) {
	g := New()
	for _, n := range []string{"a", "b", "c"} {
		g.AddNode(n, anyConstraint())
	}
	g.AddDependency("a", "b")
	g.AddDependency("b", "c")

	if err := g.DetectCycles(); err != nil {
		t.Fatalf("unexpected cycle error: %s", err)
	}
}

func TestDetectCyclesFindsCycle(t *testing.T) {
	g := New()
	for _, n := range []string{"a", "b"} {
		g.AddNode(n, anyConstraint())
	}
	g.AddDependency("a", "b")
	g.AddDependency("b", "a")

	err := g.DetectCycles()
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Errorf("cycle error %q should mention both a and b", err)
	}
}
