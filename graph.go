package modloader

import (
	"slices"
	"sort"
	"sync"
)

// DependencyGraph maps each module name to its direct dependencies. It is
// rebuilt entry by entry as descriptors are registered.
type DependencyGraph struct {
	mu    sync.RWMutex
	edges map[string][]string
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[string][]string)}
}

// Set replaces the dependency list of name.
func (g *DependencyGraph) Set(name string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[name] = slices.Clone(deps)
}

// Dependencies returns the direct dependencies of name, or an empty slice.
func (g *DependencyGraph) Dependencies(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	deps := g.edges[name]
	if len(deps) == 0 {
		return []string{}
	}
	return slices.Clone(deps)
}

// Dependents returns the modules that list name as a direct dependency,
// sorted by name.
func (g *DependencyGraph) Dependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for node, deps := range g.edges {
		if slices.Contains(deps, name) {
			out = append(out, node)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the whole adjacency map.
func (g *DependencyGraph) Snapshot() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]string, len(g.edges))
	for node, deps := range g.edges {
		out[node] = slices.Clone(deps)
	}
	return out
}

// CheckCircular walks the graph depth-first from name and returns a
// *CircularDependencyError describing the first cycle it meets. Only nodes on
// the current path count as revisits, so diamonds are not reported.
// Dependencies with no graph entry are treated as leaves.
func (g *DependencyGraph) CheckCircular(name string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		path   []string
		onPath = make(map[string]bool)
		// clean holds nodes whose whole subgraph was walked without finding
		// a cycle.
		clean = make(map[string]bool)
	)

	var visit func(node string) error
	visit = func(node string) error {
		if onPath[node] {
			start := slices.Index(path, node)
			cycle := append(slices.Clone(path[start:]), node)
			return &CircularDependencyError{Path: cycle}
		}
		if clean[node] {
			return nil
		}

		onPath[node] = true
		path = append(path, node)
		for _, dep := range g.edges[node] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		delete(onPath, node)
		clean[node] = true
		return nil
	}

	return visit(name)
}
