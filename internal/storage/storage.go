// Package storage implements the causal storage engine (C3): the
// current-state map, version store, content-deduplicated value store,
// and the history/time-travel traversal built on top of the causal
// graph.
package storage

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/kittclouds/korudelta/internal/clock"
	"github.com/kittclouds/korudelta/internal/content"
	"github.com/kittclouds/korudelta/internal/graph"
	"github.com/kittclouds/korudelta/internal/storeerr"
)

// keyLockShards is the number of stripes in the per-key write-lock
// array. A fixed power of two keeps the modulo-by-hash cheap.
const keyLockShards = 256

// Storage is the causal storage engine described in spec.md §4.3.
// Reads are lock-free against the concurrent maps; writes to a given
// FullKey are serialized by a striped mutex so concurrent writes to
// distinct keys proceed in parallel.
type Storage struct {
	graph *graph.Graph

	currentState cmap.ConcurrentMap[string, VersionedValue] // FullKey.String() -> latest VersionedValue
	versionStore cmap.ConcurrentMap[string, VersionedValue] // write_id -> VersionedValue
	valueStore   cmap.ConcurrentMap[string, any]             // distinction_id -> shared JSON

	keyLocks [keyLockShards]sync.Mutex
}

// New creates an empty causal storage engine.
func New() *Storage {
	return &Storage{
		graph:        graph.New(),
		currentState: cmap.New[VersionedValue](),
		versionStore: cmap.New[VersionedValue](),
		valueStore:   cmap.New[any](),
	}
}

func (s *Storage) lockFor(fk FullKey) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fk.String()))
	return &s.keyLocks[h.Sum32()%keyLockShards]
}

// Put computes a distinction ID for value, appends a new version to the
// causal graph, and makes it the current state for (namespace, key).
func (s *Storage) Put(namespace, key string, value any) (VersionedValue, error) {
	return s.PutWithClock(namespace, key, value, nil)
}

// PutWithClock behaves like Put but additionally stamps the resulting
// VersionedValue with vc, the vector clock governing this write. Used
// by the replication layer so causally-resolved writes carry the clock
// that decided them.
func (s *Storage) PutWithClock(namespace, key string, value any, vc clock.Clock) (VersionedValue, error) {
	fk := FullKey{Namespace: namespace, Key: key}
	lock := s.lockFor(fk)
	lock.Lock()
	defer lock.Unlock()

	distinctionID, err := content.ToDistinction(value)
	if err != nil {
		return VersionedValue{}, err
	}

	var previous string
	if prev, ok := s.currentState.Get(fk.String()); ok {
		previous = prev.WriteID
	}

	now := time.Now()
	writeID := fmt.Sprintf("%s_%d", distinctionID, now.UnixNano())

	s.graph.AddNode(writeID)
	if previous != "" {
		s.graph.AddEdge(previous, writeID)
	}

	stored, _ := s.valueStore.Get(distinctionID)
	if stored == nil && value != nil {
		s.valueStore.SetIfAbsent(distinctionID, value)
		stored, _ = s.valueStore.Get(distinctionID)
	} else if value == nil {
		stored = nil
	}

	vv := VersionedValue{
		Value:           stored,
		Timestamp:       now,
		WriteID:         writeID,
		DistinctionID:   distinctionID,
		PreviousVersion: previous,
		VectorClock:     vc,
	}

	s.versionStore.Set(writeID, vv)
	s.currentState.Set(fk.String(), vv)

	return vv, nil
}

// Get returns the current value for (namespace, key).
func (s *Storage) Get(namespace, key string) (VersionedValue, error) {
	fk := FullKey{Namespace: namespace, Key: key}
	vv, ok := s.currentState.Get(fk.String())
	if !ok {
		return VersionedValue{}, storeerr.KeyNotFound
	}
	return vv, nil
}

// GetAt returns the value for (namespace, key) as of time t: the latest
// write whose timestamp is ≤ t, found by BFS over the causal graph's
// ancestors of the current write. Ties on timestamp are broken by the
// lexicographically larger write_id.
func (s *Storage) GetAt(namespace, key string, t time.Time) (VersionedValue, error) {
	fk := FullKey{Namespace: namespace, Key: key}
	current, ok := s.currentState.Get(fk.String())
	if !ok {
		return VersionedValue{}, storeerr.KeyNotFound
	}

	var best *VersionedValue
	consider := func(vv VersionedValue) {
		if vv.Timestamp.After(t) {
			return
		}
		if best == nil {
			best = &vv
			return
		}
		if vv.Timestamp.After(best.Timestamp) ||
			(vv.Timestamp.Equal(best.Timestamp) && vv.WriteID > best.WriteID) {
			best = &vv
		}
	}

	consider(current)
	for id := range s.graph.Ancestors(current.WriteID) {
		if vv, ok := s.versionStore.Get(id); ok {
			consider(vv)
		}
	}

	if best == nil {
		return VersionedValue{}, storeerr.NoValueAtTimestamp
	}
	return *best, nil
}

// History returns every version of (namespace, key), oldest first.
func (s *Storage) History(namespace, key string) ([]HistoryEntry, error) {
	fk := FullKey{Namespace: namespace, Key: key}
	current, ok := s.currentState.Get(fk.String())
	if !ok {
		return nil, storeerr.KeyNotFound
	}

	versions := []VersionedValue{current}
	for id := range s.graph.Ancestors(current.WriteID) {
		if vv, ok := s.versionStore.Get(id); ok {
			versions = append(versions, vv)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Timestamp.Before(versions[j].Timestamp)
	})

	entries := make([]HistoryEntry, len(versions))
	for i, v := range versions {
		entries[i] = newHistoryEntry(v)
	}
	return entries, nil
}

// Delete writes a null (tombstone) value, preserving history.
func (s *Storage) Delete(namespace, key string) (VersionedValue, error) {
	return s.Put(namespace, key, nil)
}

// InsertDirect is the replay path used exclusively by persistence: it
// preserves the original write_id and previous_version and is idempotent
// on duplicate write IDs (a WAL replay may see the same write twice).
func (s *Storage) InsertDirect(namespace, key string, vv VersionedValue) {
	fk := FullKey{Namespace: namespace, Key: key}
	lock := s.lockFor(fk)
	lock.Lock()
	defer lock.Unlock()

	if _, exists := s.versionStore.Get(vv.WriteID); exists {
		return
	}

	s.graph.AddNode(vv.WriteID)
	if vv.PreviousVersion != "" {
		s.graph.AddNode(vv.PreviousVersion)
		s.graph.AddEdge(vv.PreviousVersion, vv.WriteID)
	}

	if vv.Value != nil {
		s.valueStore.SetIfAbsent(vv.DistinctionID, vv.Value)
	}

	s.versionStore.Set(vv.WriteID, vv)

	cur, ok := s.currentState.Get(fk.String())
	if !ok || vv.Timestamp.After(cur.Timestamp) {
		s.currentState.Set(fk.String(), vv)
	}
}

// ListKeys returns the sorted list of keys in namespace.
func (s *Storage) ListKeys(namespace string) []string {
	var keys []string
	for fullKey := range s.currentState.IterBuffered() {
		fk := fullKey.Key
		if n, k, ok := splitFullKey(fk); ok && n == namespace {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ListNamespaces returns the sorted list of distinct namespaces with at
// least one live current-state entry.
func (s *Storage) ListNamespaces() []string {
	seen := make(map[string]struct{})
	for fullKey := range s.currentState.IterBuffered() {
		if n, _, ok := splitFullKey(fullKey.Key); ok {
			seen[n] = struct{}{}
		}
	}
	namespaces := make([]string, 0, len(seen))
	for n := range seen {
		namespaces = append(namespaces, n)
	}
	sort.Strings(namespaces)
	return namespaces
}

// KeyCount returns the number of live current-state entries.
func (s *Storage) KeyCount() int {
	return s.currentState.Count()
}

// CreateSnapshot returns every current-state entry and, for each
// FullKey, its complete history, for use by the persistence layer.
func (s *Storage) CreateSnapshot() (map[FullKey]VersionedValue, map[FullKey][]VersionedValue) {
	current := make(map[FullKey]VersionedValue)
	historyLog := make(map[FullKey][]VersionedValue)

	for item := range s.currentState.IterBuffered() {
		n, k, ok := splitFullKey(item.Key)
		if !ok {
			continue
		}
		fk := FullKey{Namespace: n, Key: k}
		current[fk] = item.Val

		entries, err := s.History(n, k)
		if err != nil {
			continue
		}
		versions := make([]VersionedValue, 0, len(entries))
		for id := range s.graph.Ancestors(item.Val.WriteID) {
			if vv, ok := s.versionStore.Get(id); ok {
				versions = append(versions, vv)
			}
		}
		versions = append(versions, item.Val)
		sort.Slice(versions, func(i, j int) bool {
			return versions[i].Timestamp.Before(versions[j].Timestamp)
		})
		historyLog[fk] = versions
	}

	return current, historyLog
}

// FromSnapshot rebuilds a Storage from a persisted current-state map and
// history log, replaying every version via InsertDirect in ascending
// timestamp order so write IDs and previous_version links are preserved
// exactly.
func FromSnapshot(current map[FullKey]VersionedValue, historyLog map[FullKey][]VersionedValue) *Storage {
	s := New()
	for fk, versions := range historyLog {
		sorted := append([]VersionedValue{}, versions...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		for _, vv := range sorted {
			s.InsertDirect(fk.Namespace, fk.Key, vv)
		}
	}
	// Any current-state entries not covered by a history log (e.g. a
	// snapshot with no retained history for a key) are inserted directly
	// so the live value is always restored.
	for fk, vv := range current {
		if _, ok := s.versionStore.Get(vv.WriteID); !ok {
			s.InsertDirect(fk.Namespace, fk.Key, vv)
		}
	}
	return s
}

func splitFullKey(s string) (namespace, key string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == fullKeySeparator[0] {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
