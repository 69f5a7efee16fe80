// Package graph implements the append-only causal DAG of write IDs that
// underlies time-travel and history traversal in KoruDelta.
package graph

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Graph is an append-only directed acyclic graph whose nodes are write
// IDs and whose edges point from a parent write to its causal child.
// Nodes are tracked in a concurrent map so membership checks are
// lock-free; the adjacency lists are guarded by a single RWMutex since
// edges are added far less often than nodes are queried.
type Graph struct {
	nodes cmap.ConcurrentMap[string, struct{}]

	mu       sync.RWMutex
	children map[string][]string
	parents  map[string][]string
}

// New creates an empty causal graph.
func New() *Graph {
	return &Graph{
		nodes:    cmap.New[struct{}](),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode registers id as a node. Idempotent.
func (g *Graph) AddNode(id string) {
	g.nodes.SetIfAbsent(id, struct{}{})
}

// Contains reports whether id has been registered via AddNode.
func (g *Graph) Contains(id string) bool {
	_, ok := g.nodes.Get(id)
	return ok
}

// AddEdge records a causal edge from parent to child. Both endpoints must
// already exist via AddNode; a missing endpoint or a self-loop is a
// silent no-op (the graph never panics), and duplicate edges are
// ignored.
func (g *Graph) AddEdge(parent, child string) {
	if parent == child {
		return
	}
	if !g.Contains(parent) || !g.Contains(child) {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.children[parent] {
		if c == child {
			return
		}
	}
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = append(g.parents[child], parent)
}

// Ancestors returns the set of all transitive ancestors of id (not
// including id itself), memoized only for the duration of this call via
// a local visited set. Returns an empty set for an unknown ID.
func (g *Graph) Ancestors(id string) map[string]struct{} {
	visited := make(map[string]struct{})
	g.mu.RLock()
	defer g.mu.RUnlock()

	queue := append([]string{}, g.parents[id]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, seen := visited[n]; seen {
			continue
		}
		visited[n] = struct{}{}
		queue = append(queue, g.parents[n]...)
	}
	return visited
}

// Descendants returns the set of all transitive descendants of id (not
// including id itself). Returns an empty set for an unknown ID.
func (g *Graph) Descendants(id string) map[string]struct{} {
	visited := make(map[string]struct{})
	g.mu.RLock()
	defer g.mu.RUnlock()

	queue := append([]string{}, g.children[id]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, seen := visited[n]; seen {
			continue
		}
		visited[n] = struct{}{}
		queue = append(queue, g.children[n]...)
	}
	return visited
}

// NodeCount returns the number of registered nodes.
func (g *Graph) NodeCount() int {
	return g.nodes.Count()
}
