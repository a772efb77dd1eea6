// Package conflict implements the strict-mode conflict checker (spec §4.I):
// a post-hoc, warning-only pass over a resolved depgraph.Graph. It never
// changes the resolved map and never reports a false "incompatible" for a
// pair the resolver could have reasonably accepted.
//
// Warning wording is grounded on golang-dep's internal/feedback package
// (GetUsingFeedback/GetLockingFeedback's fixed-template strings) so tests
// can match on stable text rather than parsing structured output.
package conflict

import (
	"fmt"
	"sort"

	"github.com/lurock/lurock/internal/depgraph"
	"github.com/lurock/lurock/internal/version"
)

// Check runs every strict-mode check over graph and returns every warning,
// sorted for determinism. rootNames is the direct dependency set (depth 1),
// kept in the signature for callers already holding it from
// resolver.ResolveWithGraph even though no current check needs it; every
// check here reads directly off graph's node/edge bookkeeping instead.
func Check(graph *depgraph.Graph, rootNames []string) []string {
	var warnings []string
	warnings = append(warnings, transitiveConflicts(graph)...)
	warnings = append(warnings, diamondDependencies(graph)...)
	warnings = append(warnings, constraintViolations(graph)...)
	warnings = append(warnings, phantomDependencies()...)

	sort.Strings(warnings)
	return warnings
}

// transitiveConflicts reports every shared dependency whose parents
// requested constraints version.IntersectCompatible can't vouch for.
func transitiveConflicts(graph *depgraph.Graph) []string {
	var warnings []string
	for _, name := range graph.NodeNames() {
		parents := graph.IncomingConstraints(name)
		if len(parents) < 2 {
			continue
		}

		parentNames := make([]string, 0, len(parents))
		for p := range parents {
			parentNames = append(parentNames, p)
		}
		sort.Strings(parentNames)

		for i := 0; i < len(parentNames); i++ {
			for j := i + 1; j < len(parentNames); j++ {
				a, b := parentNames[i], parentNames[j]
				ca, cb := parents[a], parents[b]
				if version.IntersectCompatible(ca, cb) {
					continue
				}
				warnings = append(warnings, fmt.Sprintf(
					"transitive conflict: %s requires %s %s but %s requires %s %s, which are not known to be compatible",
					a, name, ca, b, name, cb,
				))
			}
		}
	}
	return warnings
}

// diamondDependencies reports every node reachable via more than one
// distinct parent in the graph (spec §8 S2): A->C and B->C, with something
// depending on both A and B, converges on C from two directions regardless
// of whether A and C end up at the same depth or different ones. Parent
// edges are read straight off the graph's node adjacency, not off
// depgraph.Graph.IncomingConstraints — a node can have two structural
// parents whether or not SetEdgeConstraint was ever called for either edge.
func diamondDependencies(graph *depgraph.Graph) []string {
	parents := map[string]map[string]bool{}
	for _, name := range graph.NodeNames() {
		node := graph.GetNode(name)
		for child := range node.OutboundEdges {
			if parents[child] == nil {
				parents[child] = map[string]bool{}
			}
			parents[child][name] = true
		}
	}

	var diamonds []string
	for _, name := range graph.NodeNames() {
		if len(parents[name]) > 1 {
			diamonds = append(diamonds, fmt.Sprintf(
				"diamond dependency: %s is reachable via more than one dependency path", name))
		}
	}
	return diamonds
}

// constraintViolations reports any node whose resolved version doesn't
// satisfy its own recorded constraint. This should never fire; it exists as
// a defensive check against a resolver bug (spec §4.I iii).
func constraintViolations(graph *depgraph.Graph) []string {
	var warnings []string
	for _, name := range graph.NodeNames() {
		node := graph.GetNode(name)
		if node.ResolvedVersion == nil {
			continue
		}
		if !version.Satisfies(*node.ResolvedVersion, node.Constraint) {
			warnings = append(warnings, fmt.Sprintf(
				"constraint violation: %s resolved to %s, which does not satisfy %s",
				name, node.ResolvedVersion, node.Constraint))
		}
	}
	return warnings
}

// phantomDependencies is a placeholder check that is always empty in this
// core (spec §4.I iv) — kept as an explicit no-op rather than omitted so the
// four-kind enumeration in spec §4.I stays visible in the code.
func phantomDependencies() []string {
	return nil
}
