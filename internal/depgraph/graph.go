// Package depgraph implements the labeled DAG the resolver builds and
// queries (spec §4.E): nodes carry a constraint and an optional resolved
// version, edges record "depends on", and cycle detection is a three-color
// depth-first traversal, grounded on golang-dep's solver.go bookkeeping and
// corroborated by chx-gps's solver-tracing shape.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/lurock/lurock/internal/version"
)

// Node is one package entry in the graph.
type Node struct {
	Name           string
	Constraint     version.Constraint
	ResolvedVersion *version.Version
	OutboundEdges  map[string]struct{}
}

// Graph is a labeled DAG, owned for the duration of exactly one resolve
// call (spec §3 "Ownership").
type Graph struct {
	nodes map[string]*Node
	// edgeConstraints records the constraint each "from" node requested of
	// "to", keyed from -> to. internal/conflict's transitive-conflict check
	// needs every parent's individual constraint on a shared dependency;
	// Node.Constraint alone only retains the last one set.
	edgeConstraints map[string]map[string]version.Constraint
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{nodes: map[string]*Node{}, edgeConstraints: map[string]map[string]version.Constraint{}}
}

// AddNode is idempotent on name: a second call updates the stored
// constraint only if no resolved version has been set yet for that node.
func (g *Graph) AddNode(name string, c version.Constraint) {
	if existing, ok := g.nodes[name]; ok {
		if existing.ResolvedVersion == nil {
			existing.Constraint = c
		}
		return
	}
	g.nodes[name] = &Node{
		Name:          name,
		Constraint:    c,
		OutboundEdges: map[string]struct{}{},
	}
}

// AddDependency inserts an edge from -> to; both nodes must already exist.
func (g *Graph) AddDependency(from, to string) error {
	fn, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("depgraph: add_dependency: node %q does not exist", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("depgraph: add_dependency: node %q does not exist", to)
	}
	fn.OutboundEdges[to] = struct{}{}
	return nil
}

// SetResolvedVersion stores v for name. A second call attempting to set a
// different version is an error.
func (g *Graph) SetResolvedVersion(name string, v version.Version) error {
	n, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("depgraph: set_resolved_version: node %q does not exist", name)
	}
	if n.ResolvedVersion != nil && !n.ResolvedVersion.Equal(v) {
		return fmt.Errorf("depgraph: node %q already resolved to %s, cannot overwrite with %s", name, n.ResolvedVersion, v)
	}
	n.ResolvedVersion = &v
	return nil
}

// GetNode returns the node named name, or nil if absent.
func (g *Graph) GetNode(name string) *Node {
	return g.nodes[name]
}

// SetEdgeConstraint records the constraint "from" requested of "to",
// independent of whatever Node.Constraint "to" ends up holding.
func (g *Graph) SetEdgeConstraint(from, to string, c version.Constraint) {
	if _, ok := g.edgeConstraints[to]; !ok {
		g.edgeConstraints[to] = map[string]version.Constraint{}
	}
	g.edgeConstraints[to][from] = c
}

// IncomingConstraints returns, for node "to", the constraint each parent
// that depends on it requested, keyed by parent name.
func (g *Graph) IncomingConstraints(to string) map[string]version.Constraint {
	return g.edgeConstraints[to]
}

// NodeNames returns every node name, sorted lexicographically for
// deterministic iteration (spec §5 "Ordering guarantees").
func (g *Graph) NodeNames() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// color marks a node's DFS state for cycle detection.
type color uint8

const (
	white color = iota
	gray
	black
)

// CycleError reports a cycle found during DetectCycles, naming every
// package on the cycle path.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	s := "circular dependency: "
	for i, n := range e.Path {
		if i > 0 {
			s += " -> "
		}
		s += n
	}
	return s
}

// DetectCycles runs a three-color depth-first traversal over the graph; a
// gray-to-gray edge reports the cycle path via a *CycleError.
func (g *Graph) DetectCycles() error {
	colors := make(map[string]color, len(g.nodes))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = gray
		path = append(path, name)

		n := g.nodes[name]
		edges := make([]string, 0, len(n.OutboundEdges))
		for e := range n.OutboundEdges {
			edges = append(edges, e)
		}
		sort.Strings(edges)

		for _, to := range edges {
			switch colors[to] {
			case white:
				if err := visit(to); err != nil {
					return err
				}
			case gray:
				cycle := append(append([]string{}, path...), to)
				return &CycleError{Path: cycle}
			case black:
				// already fully explored, no cycle through here
			}
		}

		colors[name] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range g.NodeNames() {
		if colors[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}
