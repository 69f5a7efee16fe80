package replication

import (
	"time"

	"github.com/kittclouds/korudelta/internal/clock"
	"github.com/kittclouds/korudelta/internal/storage"
)

// Heartbeat is sent periodically between peers to track liveness.
type Heartbeat struct {
	FromNode  string    `json:"from_node"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteBroadcast propagates a single causal write to peers immediately
// after it is applied locally.
type WriteBroadcast struct {
	FromNode  string                 `json:"from_node"`
	Namespace string                 `json:"namespace"`
	Key       string                 `json:"key"`
	Value     storage.VersionedValue `json:"value"`
}

// NamespaceDigestEntry is a single (key, vector_clock) pair exchanged
// during anti-entropy, compact enough to send for an entire namespace
// without shipping full values.
type NamespaceDigestEntry struct {
	Key         string      `json:"key"`
	VectorClock clock.Clock `json:"vector_clock"`
}

// AntiEntropyDigest summarizes one node's view of a namespace for
// divergence detection against a peer.
type AntiEntropyDigest struct {
	FromNode  string                  `json:"from_node"`
	Namespace string                  `json:"namespace"`
	Entries   []NamespaceDigestEntry  `json:"entries"`
}

// AntiEntropyRequest asks a peer for the full VersionedValues of the
// listed keys, sent after comparing digests and finding divergence.
type AntiEntropyRequest struct {
	FromNode  string   `json:"from_node"`
	Namespace string   `json:"namespace"`
	Keys      []string `json:"keys"`
}

// AntiEntropyResponse carries the full values (and any tombstones) the
// requester was missing or behind on.
type AntiEntropyResponse struct {
	FromNode   string                             `json:"from_node"`
	Namespace  string                             `json:"namespace"`
	Values     map[string]storage.VersionedValue  `json:"values"`
	Tombstones map[string]Tombstone               `json:"tombstones"`
}

// JoinRequest is sent by a node joining the cluster to announce itself.
type JoinRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

// JoinResponse acknowledges a JoinRequest, informing the joiner of the
// current cluster membership.
type JoinResponse struct {
	Accepted bool     `json:"accepted"`
	Peers    []string `json:"peers"`
	Reason   string   `json:"reason,omitempty"`
}
