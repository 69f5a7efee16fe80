// Package causalindex implements the Causal Vector Index (C6): a
// version-snapshotted wrapper around an HNSW graph that supports
// "search as of version T" time-travel queries.
package causalindex

import (
	"sort"
	"sync"
	"time"

	"github.com/kittclouds/korudelta/internal/vector"
	"github.com/kittclouds/korudelta/internal/vector/hnsw"
)

// VersionID is the caller-supplied, monotonically increasing version
// tag associated with each add. The store uses a write counter for
// this; it need not be contiguous.
type VersionID uint64

// Config tunes snapshot cadence and retention.
type Config struct {
	HNSW             hnsw.Config
	MaxSnapshots     int
	SnapshotThreshold int
}

// DefaultConfig returns max_snapshots=10, snapshot_threshold=100,
// matching original_source/src/vector/causal_index.rs.
func DefaultConfig() Config {
	return Config{
		HNSW:              hnsw.DefaultConfig(),
		MaxSnapshots:      10,
		SnapshotThreshold: 100,
	}
}

// Snapshot is an immutable HNSW graph pinned to a version.
type Snapshot struct {
	Version     VersionID
	Timestamp   time.Time
	Index       *hnsw.Index
	VectorCount int
}

func (s *Snapshot) search(query vector.Vector, k int) []hnsw.Result {
	return s.Index.Search(query, k)
}

type entry struct {
	ID      string
	Vector  vector.Vector
	Version VersionID
}

// Index is a causal-consistent vector index: current state searches
// are served from a live HNSW graph, while search_at walks pinned
// snapshots (falling back to a filtered view of the current graph
// when no snapshot covers the requested version).
//
// Unlike original_source's create_snapshot (which rebuilds only from
// the pending buffer, silently dropping vectors added before the
// previous snapshot), snapshots here are rebuilt from the full
// authoritative entry set, so each snapshot is a true union of every
// vector added at or before its version.
type Index struct {
	config    Config
	namespace string
	seed      int64

	mu             sync.RWMutex
	entries        map[string]entry
	pending        []entry
	currentIndex   *hnsw.Index
	currentVersion VersionID
	snapshots      map[VersionID]*Snapshot
}

// New creates an empty causal index for namespace using cfg. seed is
// used to construct every HNSW graph this index builds (current and
// snapshots), so equivalent insert sequences produce equivalent graphs.
func New(namespace string, cfg Config, seed int64) *Index {
	return &Index{
		config:       cfg,
		namespace:    namespace,
		seed:         seed,
		entries:      make(map[string]entry),
		currentIndex: hnsw.New(cfg.HNSW, seed),
		snapshots:    make(map[VersionID]*Snapshot),
	}
}

// WithDefaults creates a causal index using DefaultConfig().
func WithDefaults(namespace string, seed int64) *Index {
	return New(namespace, DefaultConfig(), seed)
}

// Namespace returns the namespace this index manages.
func (idx *Index) Namespace() string { return idx.namespace }

// CurrentVersion returns the most recently added version.
func (idx *Index) CurrentVersion() VersionID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.currentVersion
}

// Len returns the number of vectors in the current (live) index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.currentIndex.Len()
}

// IsEmpty reports whether the current index holds no vectors.
func (idx *Index) IsEmpty() bool { return idx.Len() == 0 }

// PendingCount returns the number of vectors added since the last snapshot.
func (idx *Index) PendingCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.pending)
}

func (idx *Index) fullID(id string) string { return idx.namespace + ":" + id }

// Add inserts id's vector into the live index and records it under
// version. Once the pending buffer reaches the configured threshold,
// a new snapshot is built and the pending buffer is cleared.
func (idx *Index) Add(id string, v vector.Vector, version VersionID) error {
	full := idx.fullID(id)

	idx.mu.Lock()
	idx.currentVersion = version
	idx.entries[full] = entry{ID: full, Vector: v, Version: version}
	idx.mu.Unlock()

	if err := idx.currentIndex.Add(full, v); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.pending = append(idx.pending, entry{ID: full, Vector: v, Version: version})
	shouldSnapshot := len(idx.pending) >= idx.config.SnapshotThreshold
	idx.mu.Unlock()

	if shouldSnapshot {
		return idx.createSnapshot(version)
	}
	return nil
}

// ForceSnapshot builds a snapshot at the current version outside the
// threshold-triggered path, even if the pending buffer is below
// threshold. A no-op if nothing is pending.
func (idx *Index) ForceSnapshot() error {
	idx.mu.RLock()
	version := idx.currentVersion
	idx.mu.RUnlock()
	return idx.createSnapshot(version)
}

func (idx *Index) createSnapshot(version VersionID) error {
	idx.mu.Lock()
	if len(idx.pending) == 0 {
		idx.mu.Unlock()
		return nil
	}
	all := make([]entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		all = append(all, e)
	}
	idx.mu.Unlock()

	rebuilt := hnsw.New(idx.config.HNSW, idx.seed)
	for _, e := range all {
		if err := rebuilt.Add(e.ID, e.Vector); err != nil {
			return err
		}
	}

	snap := &Snapshot{
		Version:     version,
		Timestamp:   time.Now(),
		Index:       rebuilt,
		VectorCount: rebuilt.Len(),
	}

	idx.mu.Lock()
	idx.snapshots[version] = snap
	idx.pending = nil
	idx.mu.Unlock()

	idx.cleanupSnapshots()
	return nil
}

func (idx *Index) cleanupSnapshots() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(idx.snapshots) <= idx.config.MaxSnapshots {
		return
	}
	versions := make([]VersionID, 0, len(idx.snapshots))
	for v := range idx.snapshots {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	toRemove := len(idx.snapshots) - idx.config.MaxSnapshots
	for i := 0; i < toRemove; i++ {
		delete(idx.snapshots, versions[i])
	}
}

// Search delegates to the live (current) index.
func (idx *Index) Search(query vector.Vector, k int) []hnsw.Result {
	idx.mu.RLock()
	current := idx.currentIndex
	idx.mu.RUnlock()
	return current.Search(query, k)
}

// SearchAt returns search results as they would have appeared
// immediately after processing target. Precision is bounded by
// snapshot granularity.
func (idx *Index) SearchAt(query vector.Vector, k int, target VersionID) []hnsw.Result {
	idx.mu.RLock()
	if snap, ok := idx.snapshots[target]; ok {
		idx.mu.RUnlock()
		return snap.search(query, k)
	}

	var nearest VersionID
	found := false
	for v := range idx.snapshots {
		if v <= target && (!found || v > nearest) {
			nearest = v
			found = true
		}
	}

	if found {
		snap := idx.snapshots[nearest]
		var additional []entry
		for _, e := range idx.pending {
			if e.Version <= target {
				additional = append(additional, e)
			}
		}
		idx.mu.RUnlock()

		if len(additional) == 0 {
			return snap.search(query, k)
		}
		return mergeSnapshotAndAdditional(snap, query, k, additional)
	}

	current := idx.currentIndex
	entries := idx.entries
	idx.mu.RUnlock()

	oversample := k * 2
	if oversample < k {
		oversample = k
	}
	raw := current.Search(query, oversample)
	out := make([]hnsw.Result, 0, k)
	for _, r := range raw {
		e, ok := entries[r.ID]
		if !ok || e.Version > target {
			continue
		}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out
}

// mergeSnapshotAndAdditional merges the snapshot's top results with
// brute-force-scored additional pending vectors. A vector present in
// both the snapshot and the additional set (by ID) keeps the
// snapshot's entry — snapshot wins over a pending duplicate.
func mergeSnapshotAndAdditional(snap *Snapshot, query vector.Vector, k int, additional []entry) []hnsw.Result {
	snapResults := snap.search(query, k+len(additional))
	seen := make(map[string]struct{}, len(snapResults))
	merged := make([]hnsw.Result, len(snapResults))
	copy(merged, snapResults)
	for _, r := range snapResults {
		seen[r.ID] = struct{}{}
	}

	for _, e := range additional {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		score, ok := query.CosineSimilarity(e.Vector)
		if !ok {
			continue
		}
		merged = append(merged, hnsw.Result{ID: e.ID, Score: score})
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// Clear resets the index to empty, discarding every snapshot.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string]entry)
	idx.pending = nil
	idx.currentIndex = hnsw.New(idx.config.HNSW, idx.seed)
	idx.currentVersion = 0
	idx.snapshots = make(map[VersionID]*Snapshot)
}

// Stats summarizes the index's snapshot state for observability,
// matching original_source's SnapshotStats.
type Stats struct {
	SnapshotCount int
	Versions      []VersionID
	TotalVectors  int
	MaxSnapshots  int
}

// SnapshotStats reports the current snapshot inventory.
func (idx *Index) SnapshotStats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	versions := make([]VersionID, 0, len(idx.snapshots))
	total := 0
	for v, s := range idx.snapshots {
		versions = append(versions, v)
		total += s.VectorCount
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	return Stats{
		SnapshotCount: len(idx.snapshots),
		Versions:      versions,
		TotalVectors:  total,
		MaxSnapshots:  idx.config.MaxSnapshots,
	}
}
