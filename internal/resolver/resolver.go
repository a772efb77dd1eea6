// Package resolver drives version.Version/Constraint, registryclient, the
// spec parser, and depgraph.Graph to produce a resolved version map for a
// manifest's dependency set (spec §4.F).
//
// The algorithm is a deliberately simple single-pass, first-fit worklist
// walk rather than golang-dep's backtracking SAT-style solver.go — spec §9
// documents this as an intentional simplicity/soundness trade-off, not a
// faithfulness gap; the worklist/processed-set bookkeeping itself is still
// modeled on solver.go's selection/version-queue shape.
package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/lurock/lurock/internal/depgraph"
	"github.com/lurock/lurock/internal/lurockerrors"
	"github.com/lurock/lurock/internal/registryclient"
	"github.com/lurock/lurock/internal/specfile"
	"github.com/lurock/lurock/internal/version"
)

// Strategy selects how a package's available versions are ordered before
// picking the first one that satisfies its constraint.
type Strategy int

const (
	Highest Strategy = iota
	Lowest
)

// ResolvedMap is the resolver's output: a total function name -> Version,
// closed under transitive dependencies and satisfying every constraint in
// the graph.
type ResolvedMap map[string]version.Version

// ResolvedEntry carries the registry/spec metadata behind one resolved
// package, for callers (internal/lockfile) that need more than the bare
// version to build a lockfile entry.
type ResolvedEntry struct {
	Version version.Version
	SpecURL string
	Spec    specfile.PackageSpec
}

// ResolvedDetailMap is the richer counterpart to ResolvedMap.
type ResolvedDetailMap map[string]ResolvedEntry

// runtimeDepPrefix is the interpreter name used by the heuristic in spec §9:
// a dependency line is a runtime requirement, not a package dependency, iff
// its name starts with this prefix AND the line carries a version operator.
// Preserved verbatim per spec §9's instruction not to generalize this
// without also migrating the surrounding configuration.
const runtimeDepPrefix = "lua"

// Resolver resolves a manifest's dependency map against a registry.
type Resolver struct {
	client   registryclient.PackageClient
	strategy Strategy
}

// New builds a Resolver.
func New(client registryclient.PackageClient, strategy Strategy) *Resolver {
	return &Resolver{client: client, strategy: strategy}
}

type versionEntry struct {
	registryVersion string
	semver          version.Version
	revision        uint64
	hasRevision     bool
	specURL         string
}

// Resolve implements spec §4.F's algorithm over deps (name -> constraint
// string), returning just the resolved versions.
func (r *Resolver) Resolve(ctx context.Context, deps map[string]string) (ResolvedMap, error) {
	detailed, err := r.ResolveDetailed(ctx, deps)
	if err != nil {
		return nil, err
	}
	out := make(ResolvedMap, len(detailed))
	for name, entry := range detailed {
		out[name] = entry.Version
	}
	return out, nil
}

// ResolveDetailed runs the same algorithm as Resolve but also retains each
// resolved package's spec URL and parsed spec, which internal/lockfile needs
// to populate a LockedPackage's source and dependency fields without
// re-walking the registry a second time.
func (r *Resolver) ResolveDetailed(ctx context.Context, deps map[string]string) (ResolvedDetailMap, error) {
	detailed, _, _, err := r.resolveCore(ctx, deps)
	return detailed, err
}

// ResolveWithGraph additionally returns the populated depgraph.Graph (with
// every edge's individual constraint recorded) and the sorted list of direct
// dependency names, which internal/conflict needs to report transitive and
// diamond-dependency warnings (spec §4.I).
func (r *Resolver) ResolveWithGraph(ctx context.Context, deps map[string]string) (ResolvedDetailMap, *depgraph.Graph, []string, error) {
	return r.resolveCore(ctx, deps)
}

func (r *Resolver) resolveCore(ctx context.Context, deps map[string]string) (ResolvedDetailMap, *depgraph.Graph, []string, error) {
	graph := depgraph.New()
	out := ResolvedDetailMap{}
	processed := map[string]bool{}

	type work struct {
		name       string
		constraint version.Constraint
	}
	var worklist []work

	// deterministic worklist seeding: sort direct dependency names
	// lexicographically before pushing (spec §5 "Ordering guarantees").
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		c, err := version.ParseConstraint(deps[n])
		if err != nil {
			return nil, nil, nil, err
		}
		graph.AddNode(n, c)
		worklist = append(worklist, work{name: n, constraint: c})
	}

	// memoize the registry index for the lifetime of this Resolve call
	// (SPEC_FULL.md §3 "Registry index caching").
	var registryCache registryclient.Registry

	fetchRegistry := func() (registryclient.Registry, error) {
		if registryCache != nil {
			return registryCache, nil
		}
		reg, err := r.client.FetchManifest(ctx)
		if err != nil {
			return nil, err
		}
		registryCache = reg
		return reg, nil
	}

	for len(worklist) > 0 {
		w := worklist[0]
		worklist = worklist[1:]

		if processed[w.name] {
			continue
		}
		processed[w.name] = true

		reg, err := fetchRegistry()
		if err != nil {
			return nil, nil, nil, err
		}

		records, ok := reg[w.name]
		if !ok || len(records) == 0 {
			return nil, nil, nil, lurockerrors.NewPackage("no versions available for %q", w.name)
		}

		entries := make([]versionEntry, 0, len(records))
		for _, rec := range records {
			sv, err := version.RegistryToSemver(rec.Version)
			if err != nil {
				continue
			}
			rev, hasRev := version.RegistryRevision(rec.Version)
			entries = append(entries, versionEntry{
				registryVersion: rec.Version,
				semver:          sv,
				revision:        rev,
				hasRevision:     hasRev,
				specURL:         rec.SpecURL,
			})
		}
		if len(entries) == 0 {
			return nil, nil, nil, lurockerrors.NewPackage("no parseable versions available for %q", w.name)
		}

		sortEntries(entries, r.strategy)

		var chosen *versionEntry
		for i := range entries {
			if version.Satisfies(entries[i].semver, w.constraint) {
				chosen = &entries[i]
				break
			}
		}
		if chosen == nil {
			return nil, nil, nil, lurockerrors.NewPackage("no version satisfies %s for %q", w.constraint, w.name)
		}

		graph.AddNode(w.name, w.constraint)
		if err := graph.SetResolvedVersion(w.name, chosen.semver); err != nil {
			return nil, nil, nil, lurockerrors.WrapPackage(err, "resolving %q", w.name)
		}
		specText, err := r.client.DownloadSpec(ctx, chosen.specURL)
		if err != nil {
			return nil, nil, nil, err
		}
		spec, err := r.client.ParseSpec(specText)
		if err != nil {
			return nil, nil, nil, err
		}

		out[w.name] = ResolvedEntry{Version: chosen.semver, SpecURL: chosen.specURL, Spec: spec}

		depNames := make([]string, 0, len(spec.Dependencies))
		depConstraints := map[string]version.Constraint{}
		for _, line := range spec.Dependencies {
			name, constraint, skip, err := parseDependencyLine(line)
			if err != nil {
				return nil, nil, nil, err
			}
			if skip {
				continue
			}
			depNames = append(depNames, name)
			depConstraints[name] = constraint
		}
		sort.Strings(depNames)

		for _, depName := range depNames {
			if graph.GetNode(depName) == nil {
				graph.AddNode(depName, depConstraints[depName])
			}
			if err := graph.AddDependency(w.name, depName); err != nil {
				return nil, nil, nil, lurockerrors.WrapPackage(err, "adding dependency edge %s -> %s", w.name, depName)
			}
			graph.SetEdgeConstraint(w.name, depName, depConstraints[depName])
			if !processed[depName] {
				worklist = append(worklist, work{name: depName, constraint: depConstraints[depName]})
			}
		}
	}

	if err := graph.DetectCycles(); err != nil {
		return nil, nil, nil, lurockerrors.WrapPackage(err, "circular dependency")
	}

	return out, graph, names, nil
}

// sortEntries orders entries per strategy, with the Highest tie-break of
// preferring the higher registry revision when two entries' semvers compare
// equal (spec §4.F "Tie-breaks").
func sortEntries(entries []versionEntry, strategy Strategy) {
	sort.SliceStable(entries, func(i, j int) bool {
		cmp := entries[i].semver.Compare(entries[j].semver)
		if cmp == 0 {
			if entries[i].hasRevision && entries[j].hasRevision && entries[i].revision != entries[j].revision {
				if strategy == Highest {
					return entries[i].revision > entries[j].revision
				}
				return entries[i].revision < entries[j].revision
			}
			return false
		}
		if strategy == Highest {
			return cmp > 0
		}
		return cmp < 0
	})
}

// ParseDependencyLine exports parseDependencyLine for callers outside this
// package (internal/lockfile reuses it so the runtime-dependency skip rule
// has exactly one implementation).
func ParseDependencyLine(line string) (name string, constraint version.Constraint, skip bool, err error) {
	return parseDependencyLine(line)
}

// parseDependencyLine parses a free-form "name op version" or bare "name"
// dependency string (spec §3 PackageSpec.dependencies, §4.F step 2e).
// Registry "~>" is converted to "^" before parsing. Returns skip=true for
// runtime-interpreter requirement lines per the heuristic in spec §9.
func parseDependencyLine(line string) (name string, constraint version.Constraint, skip bool, err error) {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", version.Constraint{}, false, lurockerrors.NewPackage("empty dependency line")
	}

	name = fields[0]
	hasOperator := len(fields) >= 2

	if strings.HasPrefix(name, runtimeDepPrefix) && hasOperator {
		return name, version.Constraint{}, true, nil
	}

	if !hasOperator {
		return name, version.NewGreaterOrEqual(version.Zero), false, nil
	}

	op := fields[1]
	var versionStr string
	if len(fields) >= 3 {
		versionStr = fields[2]
	}

	if op == "~>" {
		op = "^"
	}

	switch op {
	case "=", "^", "~", ">=", "<":
		c, cerr := version.ParseConstraint(op + versionStr)
		if cerr != nil {
			// malformed version after a recognized operator still degrades
			// to an open constraint rather than aborting resolution, per
			// spec §4.F "unknown operators degrade to GreaterOrEqual(0.0.0)".
			return name, version.NewGreaterOrEqual(version.Zero), false, nil
		}
		return name, c, false, nil
	default:
		return name, version.NewGreaterOrEqual(version.Zero), false, nil
	}
}
