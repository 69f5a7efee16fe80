// Package hnsw implements a Hierarchical Navigable Small World
// approximate-nearest-neighbor graph (C5): the ANN index that backs
// embedding search.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/kittclouds/korudelta/internal/vector"
)

// maxLayers is the number of pre-allocated adjacency layers.
const maxLayers = 16

// Config tunes the HNSW graph's shape and search cost.
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
	ML             float64
}

// DefaultConfig returns M=16, ef_construction=200, ef_search=50,
// m_L=1/ln(M), matching original_source/src/vector/hnsw.rs exactly.
func DefaultConfig() Config {
	m := 16
	return Config{
		M:              m,
		EfConstruction: 200,
		EfSearch:       50,
		ML:             1.0 / math.Log(float64(m)),
	}
}

// Node pairs a stored vector with the highest layer it was assigned.
type Node struct {
	Vector   vector.Vector
	MaxLayer int
}

// layer is a single adjacency level: write_id -> neighbor write_ids.
type layer struct {
	mu    sync.RWMutex
	edges map[string][]string
}

func newLayer() *layer {
	return &layer{edges: make(map[string][]string)}
}

func (l *layer) neighbors(id string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.edges[id]))
	copy(out, l.edges[id])
	return out
}

func (l *layer) addEdge(a, b string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.edges[a] {
		if n == b {
			return
		}
	}
	l.edges[a] = append(l.edges[a], b)
}

func (l *layer) setNeighbors(id string, neighbors []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edges[id] = neighbors
}

func (l *layer) removeNode(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.edges, id)
	for k, neighbors := range l.edges {
		filtered := neighbors[:0:0]
		for _, n := range neighbors {
			if n != id {
				filtered = append(filtered, n)
			}
		}
		l.edges[k] = filtered
	}
}

// Result is a single search hit: the indexed ID and its similarity score.
type Result struct {
	ID    string
	Score float32
}

// Index is a concurrency-safe HNSW graph, optionally restricted to a
// single embedding model.
type Index struct {
	config Config

	nodes  cmap.ConcurrentMap[string, Node]
	layers [maxLayers]*layer

	mu         sync.RWMutex
	entryPoint string
	hasEntry   bool
	maxLayer   int

	rngMu sync.Mutex
	rng   *rand.Rand

	modelFilter string
	hasFilter   bool
}

// New creates an empty HNSW index using cfg, seeded deterministically so
// a full rebuild with identical insert order reproduces the same graph.
func New(cfg Config, seed int64) *Index {
	idx := &Index{
		config: cfg,
		nodes:  cmap.New[Node](),
		rng:    rand.New(rand.NewSource(seed)),
	}
	for i := range idx.layers {
		idx.layers[i] = newLayer()
	}
	return idx
}

// WithModelFilter restricts the index to vectors whose Model matches
// model: inserts of a different model fail, and queries with a
// different model return no results.
func (idx *Index) WithModelFilter(model string) *Index {
	idx.modelFilter = model
	idx.hasFilter = true
	return idx
}

func (idx *Index) randomLayer() int {
	idx.rngMu.Lock()
	defer idx.rngMu.Unlock()

	level := 0
	for level < maxLayers-1 {
		if idx.rng.Float64() >= math.Exp(-float64(level+1)/idx.config.ML) {
			break
		}
		level++
	}
	return level
}

// Add inserts or replaces the vector for id.
func (idx *Index) Add(id string, v vector.Vector) error {
	if idx.hasFilter && v.Model != idx.modelFilter {
		return errModelMismatch
	}

	_ = idx.Remove(id)

	layerAssigned := idx.randomLayer()

	idx.mu.Lock()
	if !idx.hasEntry {
		idx.nodes.Set(id, Node{Vector: v, MaxLayer: layerAssigned})
		idx.entryPoint = id
		idx.hasEntry = true
		idx.maxLayer = layerAssigned
		idx.mu.Unlock()
		return nil
	}
	entry := idx.entryPoint
	currMax := idx.maxLayer
	idx.mu.Unlock()

	idx.nodes.Set(id, Node{Vector: v, MaxLayer: layerAssigned})

	curr := entry
	for l := currMax; l > layerAssigned; l-- {
		if l >= maxLayers {
			continue
		}
		curr = idx.searchLayerSimple(curr, v, l)
	}

	for l := min(layerAssigned, currMax); l >= 0; l-- {
		candidates := idx.searchLayer([]string{curr}, v, l, idx.config.EfConstruction)
		selected := selectNeighbors(candidates, idx.config.M)

		for _, c := range selected {
			idx.layers[l].addEdge(id, c.ID)
			idx.layers[l].addEdge(c.ID, id)
			idx.pruneConnections(c.ID, l)
		}
		if len(selected) > 0 {
			curr = selected[0].ID
		}
	}

	idx.mu.Lock()
	if layerAssigned > idx.maxLayer {
		idx.maxLayer = layerAssigned
		idx.entryPoint = id
	}
	idx.mu.Unlock()

	return nil
}

func (idx *Index) pruneConnections(id string, l int) {
	neighbors := idx.layers[l].neighbors(id)
	limit := 2 * idx.config.M
	if len(neighbors) <= limit {
		return
	}
	node, ok := idx.nodes.Get(id)
	if !ok {
		return
	}
	candidates := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		nn, ok := idx.nodes.Get(n)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{ID: n, Distance: distance(node.Vector, nn.Vector)})
	}
	sortCandidatesAsc(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	kept := make([]string, len(candidates))
	for i, c := range candidates {
		kept[i] = c.ID
	}
	idx.layers[l].setNeighbors(id, kept)
}

// Remove deletes id from the index, promoting a new entry point (the
// surviving node with the highest max layer) if id was the entry point.
func (idx *Index) Remove(id string) error {
	if _, ok := idx.nodes.Get(id); !ok {
		return nil
	}
	idx.nodes.Remove(id)
	for _, l := range idx.layers {
		l.removeNode(id)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.entryPoint != id {
		return nil
	}

	idx.hasEntry = false
	idx.entryPoint = ""
	idx.maxLayer = 0
	best := -1
	for item := range idx.nodes.IterBuffered() {
		if item.Val.MaxLayer >= best {
			best = item.Val.MaxLayer
			idx.entryPoint = item.Key
			idx.hasEntry = true
			idx.maxLayer = item.Val.MaxLayer
		}
	}
	return nil
}

// Search returns up to k nearest neighbors to query, sorted by
// descending similarity. Returns an empty result (not an error) on a
// model mismatch or dimension mismatch, or if the index is empty.
func (idx *Index) Search(query vector.Vector, k int) []Result {
	if idx.hasFilter && query.Model != idx.modelFilter {
		return nil
	}
	idx.mu.RLock()
	entry, hasEntry, currMax := idx.entryPoint, idx.hasEntry, idx.maxLayer
	idx.mu.RUnlock()
	if !hasEntry {
		return nil
	}

	curr := entry
	for l := currMax; l >= 1; l-- {
		curr = idx.searchLayerSimple(curr, query, l)
	}

	ef := idx.config.EfSearch
	if k > ef {
		ef = k
	}
	candidates := idx.searchLayer([]string{curr}, query, 0, ef)
	sortCandidatesAsc(candidates)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if len(results) >= k {
			break
		}
		if c.Distance == math.MaxFloat32 { // dimension mismatch
			continue
		}
		results = append(results, Result{ID: c.ID, Score: 1 - c.Distance})
	}
	return results
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int { return idx.nodes.Count() }

// IsEmpty reports whether the index holds no vectors.
func (idx *Index) IsEmpty() bool { return idx.nodes.Count() == 0 }

// Clear removes every vector from the index.
func (idx *Index) Clear() {
	idx.nodes.Clear()
	for i := range idx.layers {
		idx.layers[i] = newLayer()
	}
	idx.mu.Lock()
	idx.hasEntry = false
	idx.entryPoint = ""
	idx.maxLayer = 0
	idx.mu.Unlock()
}

// searchLayerSimple performs a greedy 1-nearest search at layer l
// starting from entry, returning the locally closest node found
// (ef=1).
func (idx *Index) searchLayerSimple(entry string, query vector.Vector, l int) string {
	if l >= maxLayers {
		return entry
	}
	entryNode, ok := idx.nodes.Get(entry)
	if !ok {
		return entry
	}
	best := entry
	bestDist := distance(query, entryNode.Vector)

	improved := true
	for improved {
		improved = false
		for _, n := range idx.layers[l].neighbors(best) {
			nn, ok := idx.nodes.Get(n)
			if !ok {
				continue
			}
			d := distance(query, nn.Vector)
			if d < bestDist {
				bestDist = d
				best = n
				improved = true
			}
		}
	}
	return best
}

// searchLayer performs a bounded beam search of width ef at layer l,
// starting from entryPoints, returning up to ef candidates.
func (idx *Index) searchLayer(entryPoints []string, query vector.Vector, l int, ef int) []Candidate {
	if l >= maxLayers {
		l = maxLayers - 1
	}
	visited := make(map[string]struct{})
	candidateHeap := &minCandidateHeap{}
	resultHeap := &maxCandidateHeap{}

	for _, ep := range entryPoints {
		node, ok := idx.nodes.Get(ep)
		if !ok {
			continue
		}
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		d := distance(query, node.Vector)
		c := Candidate{ID: ep, Distance: d}
		heap.Push(candidateHeap, c)
		heap.Push(resultHeap, c)
	}

	for candidateHeap.Len() > 0 {
		curr := heap.Pop(candidateHeap).(Candidate)

		if resultHeap.Len() >= ef {
			worst := (*resultHeap)[0]
			if curr.Distance > worst.Distance {
				break
			}
		}

		for _, n := range idx.layers[l].neighbors(curr.ID) {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			nn, ok := idx.nodes.Get(n)
			if !ok {
				continue
			}
			d := distance(query, nn.Vector)
			cand := Candidate{ID: n, Distance: d}

			if resultHeap.Len() < ef {
				heap.Push(candidateHeap, cand)
				heap.Push(resultHeap, cand)
			} else if d < (*resultHeap)[0].Distance {
				heap.Push(candidateHeap, cand)
				heap.Push(resultHeap, cand)
				heap.Pop(resultHeap)
			}
		}
	}

	out := make([]Candidate, len(*resultHeap))
	copy(out, *resultHeap)
	return out
}

func selectNeighbors(candidates []Candidate, m int) []Candidate {
	sortCandidatesAsc(candidates)
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	return candidates
}

func sortCandidatesAsc(c []Candidate) {
	// insertion sort is fine: candidate lists are bounded by ef, a small
	// constant relative to the dataset size.
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Distance < c[j-1].Distance; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func distance(a, b vector.Vector) float32 {
	sim, ok := a.CosineSimilarity(b)
	if !ok {
		return math.MaxFloat32
	}
	return 1 - sim
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
