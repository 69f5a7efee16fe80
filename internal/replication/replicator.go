// Package replication implements causal replication (C8): vector-clock
// governed put/delete and tombstones atop the causal storage engine.
// messages.go defines the anti-entropy message types; this package does
// not compare digests or run an anti-entropy exchange.
package replication

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/kittclouds/korudelta/internal/clock"
	"github.com/kittclouds/korudelta/internal/storage"
	"github.com/kittclouds/korudelta/internal/storeerr"
)

// Outcome classifies the result of a causal write.
type Outcome int

const (
	Applied Outcome = iota
	Rejected
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Rejected:
		return "rejected"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// PutResult is the outcome of a PutCausal call.
type PutResult struct {
	Outcome  Outcome
	Value    storage.VersionedValue
	Existing storage.VersionedValue
	Reason   string
}

// Tombstone records a causal delete: the key it deleted, the clock at
// the moment of deletion, and who performed it. A key with an active
// tombstone is considered deleted unless a causally-later write
// re-establishes it.
type Tombstone struct {
	Key         storage.FullKey
	VectorClock clock.Clock
	DeletedBy   string
	Timestamp   time.Time
}

// Replicator applies causally-ordered writes and deletes to a Storage,
// resolving conflicts by vector-clock dominance with last-writer-wins
// on true concurrency.
type Replicator struct {
	nodeID    string
	storage   *storage.Storage
	tombstones cmap.ConcurrentMap[string, Tombstone]
}

// New creates a Replicator for nodeID atop store.
func New(nodeID string, store *storage.Storage) *Replicator {
	return &Replicator{
		nodeID:     nodeID,
		storage:    store,
		tombstones: cmap.New[Tombstone](),
	}
}

// NodeID returns this replicator's node identifier.
func (r *Replicator) NodeID() string { return r.nodeID }

func (r *Replicator) activeTombstone(fk storage.FullKey) (Tombstone, bool) {
	return r.tombstones.Get(fk.String())
}

// PutCausal applies value under vc to (namespace, key), resolving
// against any existing current value and active tombstone per the
// causal ordering rules:
//  1. A clock that happens-before an active tombstone's clock is rejected.
//  2. An absent current value is always applied.
//  3. A dominating incoming clock is applied.
//  4. A dominating existing clock rejects the incoming write as stale.
//  5. Concurrent clocks apply last-writer-wins by timestamp, merge the
//     clocks, and report Conflict for observability.
func (r *Replicator) PutCausal(namespace, key string, value any, vc clock.Clock) (PutResult, error) {
	return r.PutCausalAt(namespace, key, value, vc, time.Now())
}

// PutCausalAt is PutCausal with an explicit proposed timestamp, for
// callers that replay a peer's original write time and for tests that
// need deterministic last-writer-wins outcomes.
func (r *Replicator) PutCausalAt(namespace, key string, value any, vc clock.Clock, proposedAt time.Time) (PutResult, error) {
	fk := storage.FullKey{Namespace: namespace, Key: key}

	if ts, ok := r.activeTombstone(fk); ok {
		if clock.HappensBefore(vc, ts.VectorClock) {
			return PutResult{Outcome: Rejected, Reason: "happens-before active tombstone"}, nil
		}
	}

	existing, err := r.storage.Get(namespace, key)
	if err != nil {
		if !errIsKeyNotFound(err) {
			return PutResult{}, err
		}
		vv, putErr := r.storage.PutWithClock(namespace, key, value, vc)
		if putErr != nil {
			return PutResult{}, putErr
		}
		return PutResult{Outcome: Applied, Value: vv}, nil
	}

	switch clock.Compare(vc, existing.VectorClock) {
	case clock.Greater, clock.Equal:
		vv, putErr := r.storage.PutWithClock(namespace, key, value, vc)
		if putErr != nil {
			return PutResult{}, putErr
		}
		return PutResult{Outcome: Applied, Value: vv, Existing: existing}, nil

	case clock.Less:
		return PutResult{Outcome: Rejected, Existing: existing, Reason: "existing clock dominates"}, nil

	default: // Concurrent
		merged := vc.Merge(existing.VectorClock)
		winnerValue := existing.Value
		if proposedAt.After(existing.Timestamp) {
			winnerValue = value
		}
		vv, putErr := r.storage.PutWithClock(namespace, key, winnerValue, merged)
		if putErr != nil {
			return PutResult{}, putErr
		}
		return PutResult{Outcome: Conflict, Value: vv, Existing: existing}, nil
	}
}

// DeleteCausal records a tombstone for (namespace, key) under vc
// (incremented for deleterNode) and writes a corresponding nil value so
// ordinary reads observe the deletion.
func (r *Replicator) DeleteCausal(namespace, key string, vc clock.Clock, deleterNode string) (Tombstone, error) {
	fk := storage.FullKey{Namespace: namespace, Key: key}
	incremented := vc.Increment(deleterNode)

	ts := Tombstone{
		Key:         fk,
		VectorClock: incremented,
		DeletedBy:   deleterNode,
		Timestamp:   time.Now(),
	}
	r.tombstones.Set(fk.String(), ts)

	if _, err := r.storage.PutWithClock(namespace, key, nil, incremented); err != nil {
		return Tombstone{}, err
	}
	return ts, nil
}

// IsTombstoned reports whether (namespace, key) currently has an active
// tombstone.
func (r *Replicator) IsTombstoned(namespace, key string) bool {
	_, ok := r.activeTombstone(storage.FullKey{Namespace: namespace, Key: key})
	return ok
}

func errIsKeyNotFound(err error) bool {
	se, ok := err.(*storeerr.Error)
	return ok && se.Kind == storeerr.KindKeyNotFound
}
