// Package graph derives the platform dependency graph from declared dependents
// and answers which platforms must rebuild when one of them changes.
package graph

import (
	"fmt"
	"sort"

	"github.com/aretw0/weave/pkg/domain"
)

type node struct {
	platform     domain.Platform
	dependents   []string
	dependencies []string
}

// Graph is immutable once built and safe for concurrent reads.
type Graph struct {
	nodes map[string]*node
	order []string
}

// Build constructs the graph. Dependents are taken verbatim from configuration and
// dependencies are derived as their exact inverse. Unknown ids, duplicate ids,
// self-loops and cycles are configuration errors.
func Build(platforms []domain.Platform) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node, len(platforms))}

	for _, p := range platforms {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: platform with empty id", domain.ErrConfig)
		}
		if _, exists := g.nodes[p.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate platform %q", domain.ErrConfig, p.ID)
		}
		g.nodes[p.ID] = &node{platform: p}
		g.order = append(g.order, p.ID)
	}

	for _, id := range g.order {
		n := g.nodes[id]
		seen := make(map[string]bool, len(n.platform.Dependents))
		for _, dep := range n.platform.Dependents {
			if dep == id {
				return nil, fmt.Errorf("%w: platform %q declares itself as a dependent", domain.ErrConfig, id)
			}
			target, ok := g.nodes[dep]
			if !ok {
				return nil, fmt.Errorf("%w: platform %q declares unknown dependent %q", domain.ErrConfig, id, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			n.dependents = append(n.dependents, dep)
			target.dependencies = append(target.dependencies, id)
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	return g, nil
}

// IDs returns every platform id in declaration order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Has reports whether the id is part of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Dependents returns the declared dependents of id.
func (g *Graph) Dependents(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, id)
	}
	return append([]string(nil), n.dependents...), nil
}

// Dependencies returns the platforms whose dependents list contains id.
func (g *Graph) Dependencies(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, id)
	}
	return append([]string(nil), n.dependencies...), nil
}

// ReachableDependents walks the dependents edges breadth-first starting at id.
// The origin comes first and every platform appears once, even under diamonds.
func (g *Graph) ReachableDependents(id string) ([]string, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, id)
	}

	visited := map[string]bool{id: true}
	queue := []string{id}
	var out []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		out = append(out, current)

		for _, dep := range g.nodes[current].dependents {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			queue = append(queue, dep)
		}
	}
	return out, nil
}

// BuildOrder groups the platforms reachable from id into waves. A platform is placed
// only after every reachable platform it depends on; the origin is alone in wave 0.
// Platforms within a wave are independent of each other and sorted by id.
func (g *Graph) BuildOrder(id string) ([][]string, error) {
	reachable, err := g.ReachableDependents(id)
	if err != nil {
		return nil, err
	}

	inSet := make(map[string]bool, len(reachable))
	for _, r := range reachable {
		inSet[r] = true
	}

	// Only edges inside the reachable set count: dependencies outside it did not change.
	pending := make(map[string]int, len(reachable))
	for _, r := range reachable {
		for _, dep := range g.nodes[r].dependencies {
			if inSet[dep] {
				pending[r]++
			}
		}
	}

	var waves [][]string
	current := []string{id}
	for len(current) > 0 {
		sort.Strings(current)
		waves = append(waves, current)

		var next []string
		for _, done := range current {
			for _, dep := range g.nodes[done].dependents {
				pending[dep]--
				if pending[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}
	return waves, nil
}

// detectCycles uses depth-first search with temporary and permanent marks.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		if permanent[id] {
			return nil
		}
		if temporary[id] {
			return fmt.Errorf("cycle detected involving platform '%s'", id)
		}
		temporary[id] = true
		for _, dep := range g.nodes[id].dependents {
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(temporary, id)
		permanent[id] = true
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
