package storage

import (
	"time"

	"github.com/kittclouds/korudelta/internal/clock"
)

// FullKey identifies a document by namespace and key. Namespaces
// partition the keyspace; keys are unique current-state identifiers
// within a namespace.
type FullKey struct {
	Namespace string
	Key       string
}

// fullKeySeparator joins a FullKey's namespace and key. It is the ASCII
// unit separator rather than ':', since namespaces themselves may embed
// a colon (e.g. the store package's "_vectors:docs" synthetic
// namespace) and a ':'-joined key would no longer split back apart at
// the right boundary.
const fullKeySeparator = "\x1f"

// String renders the canonical internal form used as the currentState
// map key. Not meant for display; namespace and key are recovered from
// it via splitFullKey.
func (k FullKey) String() string {
	return k.Namespace + fullKeySeparator + k.Key
}

// VersionedValue is a single immutable write event for a FullKey.
type VersionedValue struct {
	Value           any        `json:"value"`
	Timestamp       time.Time  `json:"timestamp"`
	WriteID         string     `json:"write_id"`
	DistinctionID   string     `json:"distinction_id"`
	PreviousVersion string     `json:"previous_version,omitempty"`
	VectorClock     clock.Clock `json:"vector_clock,omitempty"`
}

// HistoryEntry is a read-only projection of a VersionedValue returned by
// History(): VersionID reports the distinction ID of the entry, matching
// original_source's HistoryEntry::from(&VersionedValue).
type HistoryEntry struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	VersionID string    `json:"version_id"`
}

func newHistoryEntry(v VersionedValue) HistoryEntry {
	return HistoryEntry{
		Value:     v.Value,
		Timestamp: v.Timestamp,
		VersionID: v.DistinctionID,
	}
}
