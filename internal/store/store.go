// Package store assembles the causal storage engine, replication,
// query engine, auth manager, and causal vector indexes (C1-C10) into
// KoruDelta's single top-level API (C11): the operations an embedder
// actually calls.
package store

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kittclouds/korudelta/internal/auth"
	"github.com/kittclouds/korudelta/internal/clock"
	"github.com/kittclouds/korudelta/internal/config"
	"github.com/kittclouds/korudelta/internal/persistence"
	"github.com/kittclouds/korudelta/internal/query"
	"github.com/kittclouds/korudelta/internal/replication"
	"github.com/kittclouds/korudelta/internal/storage"
	"github.com/kittclouds/korudelta/internal/storeerr"
	"github.com/kittclouds/korudelta/internal/vector"
	"github.com/kittclouds/korudelta/internal/vector/causalindex"
	"github.com/kittclouds/korudelta/internal/vector/hnsw"
)

// vectorNamespacePrefix isolates embedding documents from the
// namespace they annotate, so `embed(ns, key, ...)` never collides
// with a plain `put(ns, key, ...)` on the same key.
const vectorNamespacePrefix = "_vectors:"

func vectorNamespace(namespace string) string {
	return vectorNamespacePrefix + namespace
}

// vectorDoc is the document persisted for an embedded vector: enough
// to rebuild the in-memory causal vector index on restart, since the
// index itself is never serialized.
type vectorDoc struct {
	Data     []float32      `json:"data"`
	Model    string         `json:"model"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EmbedOptions bounds an embed_search / embed_search_at call.
type EmbedOptions struct {
	TopK        int
	Threshold   float32
	ModelFilter string
}

// EmbedResult is a single embedding-search hit, resolved back to the
// (namespace, key) pair it was embedded under.
type EmbedResult struct {
	Namespace string
	Key       string
	Score     float32
}

// Store is the embedder-facing entry point for KoruDelta: one process
// holds one Store, constructed over a data directory that holds its
// snapshot and write-ahead log.
type Store struct {
	cfg    config.Config
	logger zerolog.Logger

	storage     *storage.Storage
	replicator  *replication.Replicator
	query       *query.Engine
	authManager *auth.Manager
	wal         *persistence.WAL

	indexMu sync.Mutex
	indexes map[string]*causalindex.Index

	versionCounter uint64 // monotonic VersionID source for causalindex.Add

	snapshotPath string
	walPath      string
}

// New opens (or initializes) a Store rooted at cfg.DataDir: it loads
// the last snapshot if one exists, replays the write-ahead log on top
// of it, rebuilds every vector index from persisted embedding
// documents, and opens the WAL for further appends.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Store, error) {
	snapshotPath := filepath.Join(cfg.DataDir, "snapshot.json")
	walPath := filepath.Join(cfg.DataDir, "wal.log")

	var st *storage.Storage
	if persistence.Exists(snapshotPath) {
		loaded, err := persistence.Load(ctx, snapshotPath, logger)
		if err != nil {
			return nil, err
		}
		st = loaded
	} else {
		st = storage.New()
	}

	replayed, err := persistence.ReplayWAL(walPath, st, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("replayed", replayed).Msg("store startup replay complete")

	wal, err := persistence.OpenWAL(walPath, logger)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:          cfg,
		logger:       logger,
		storage:      st,
		replicator:   replication.New(cfg.NodeID, st),
		query:        query.New(st),
		authManager:  auth.NewWithConfig(st, authConfigFrom(cfg.Auth)),
		wal:          wal,
		indexes:      make(map[string]*causalindex.Index),
		snapshotPath: snapshotPath,
		walPath:      walPath,
	}

	s.rebuildVectorIndexes()
	return s, nil
}

func authConfigFrom(a config.Auth) auth.Config {
	return auth.Config{
		Difficulty:   uint8(a.PowDifficulty),
		ChallengeTTL: a.ChallengeTTL,
		SessionTTL:   a.SessionTTL,
	}
}

// rebuildVectorIndexes replays every persisted embedding document back
// into its namespace's in-memory causal vector index, key by key in
// sorted key order with each key's versions oldest first, under fresh
// version numbers, so current() and search_at() both work immediately
// after restart.
func (s *Store) rebuildVectorIndexes() {
	for _, ns := range s.storage.ListNamespaces() {
		if len(ns) <= len(vectorNamespacePrefix) || ns[:len(vectorNamespacePrefix)] != vectorNamespacePrefix {
			continue
		}
		sourceNS := ns[len(vectorNamespacePrefix):]
		for _, key := range s.storage.ListKeys(ns) {
			entries, err := s.storage.History(ns, key)
			if err != nil {
				continue
			}
			idx := s.indexFor(sourceNS)
			for _, e := range entries {
				doc, ok := e.Value.(map[string]any)
				if !ok {
					continue
				}
				vd, err := docToVector(doc)
				if err != nil {
					continue
				}
				idx.Add(key, vector.New(vd.Data, vd.Model), s.nextVersion())
			}
		}
	}
}

func (s *Store) indexFor(namespace string) *causalindex.Index {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	idx, ok := s.indexes[namespace]
	if !ok {
		cfg := causalindex.Config{
			HNSW:              hnswConfigFrom(s.cfg.HNSW),
			MaxSnapshots:      s.cfg.VectorIndex.MaxSnapshots,
			SnapshotThreshold: s.cfg.VectorIndex.SnapshotThreshold,
		}
		idx = causalindex.New(namespace, cfg, seedFor(namespace))
		s.indexes[namespace] = idx
	}
	return idx
}

func (s *Store) nextVersion() causalindex.VersionID {
	return causalindex.VersionID(atomic.AddUint64(&s.versionCounter, 1))
}

func hnswConfigFrom(h config.HNSW) hnsw.Config {
	m := h.M
	if m <= 1 {
		m = 2
	}
	return hnsw.Config{
		M:              h.M,
		EfConstruction: h.EfConstruction,
		EfSearch:       h.EfSearch,
		ML:             1.0 / math.Log(float64(m)),
	}
}

// seedFor derives a deterministic HNSW seed from namespace so rebuilds
// after a restart produce bit-identical graphs for the same insert
// order.
func seedFor(namespace string) int64 {
	var h int64 = 1469598103934665603 // FNV-style start value (not the 64-bit FNV offset basis, which overflows int64)
	for _, c := range namespace {
		h ^= int64(c)
		h *= 1099511628211 // FNV prime
	}
	return h
}

// decodeDoc round-trips a stored document (typically a map[string]any
// retrieved from Storage) back into a typed value via JSON, mirroring
// the toDoc/fromDoc convention used throughout the auth package.
func decodeDoc[T any](doc any) (T, error) {
	var out T
	b, err := json.Marshal(doc)
	if err != nil {
		return out, storeerr.Wrap(storeerr.KindSerializationError, "marshal document", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, storeerr.Wrap(storeerr.KindSerializationError, "unmarshal document", err)
	}
	return out, nil
}

func docToVector(doc map[string]any) (vectorDoc, error) {
	return decodeDoc[vectorDoc](doc)
}

func reservedNamespaceErr(namespace string) error {
	if namespace == auth.Namespace {
		return storeerr.ReservedNamespace
	}
	if len(namespace) >= len(vectorNamespacePrefix) && namespace[:len(vectorNamespacePrefix)] == vectorNamespacePrefix {
		return storeerr.ReservedNamespace
	}
	return nil
}

// Put writes value to (namespace, key), appends the write to the WAL
// before returning, and notifies any materialized view sourced from
// namespace. External writers may never target the reserved "_auth"
// namespace or an internal vector-document namespace.
func (s *Store) Put(ctx context.Context, namespace, key string, value any) (storage.VersionedValue, error) {
	if err := reservedNamespaceErr(namespace); err != nil {
		return storage.VersionedValue{}, err
	}
	return s.putInternal(ctx, namespace, key, value)
}

func (s *Store) putInternal(ctx context.Context, namespace, key string, value any) (storage.VersionedValue, error) {
	if err := ctx.Err(); err != nil {
		return storage.VersionedValue{}, err
	}
	vv, err := s.storage.Put(namespace, key, value)
	if err != nil {
		return storage.VersionedValue{}, err
	}
	if err := s.wal.Append(ctx, namespace, key, vv); err != nil {
		return storage.VersionedValue{}, err
	}
	s.query.NotifyWrite(namespace)
	return vv, nil
}

// Get returns the current value for (namespace, key).
func (s *Store) Get(namespace, key string) (storage.VersionedValue, error) {
	return s.storage.Get(namespace, key)
}

// GetAt returns the value for (namespace, key) as of time t.
func (s *Store) GetAt(namespace, key string, t time.Time) (storage.VersionedValue, error) {
	return s.storage.GetAt(namespace, key, t)
}

// History returns every version of (namespace, key), oldest first.
func (s *Store) History(namespace, key string) ([]storage.HistoryEntry, error) {
	return s.storage.History(namespace, key)
}

// Delete tombstones (namespace, key), preserving history.
func (s *Store) Delete(ctx context.Context, namespace, key string) (storage.VersionedValue, error) {
	if err := reservedNamespaceErr(namespace); err != nil {
		return storage.VersionedValue{}, err
	}
	if err := ctx.Err(); err != nil {
		return storage.VersionedValue{}, err
	}
	vv, err := s.storage.Delete(namespace, key)
	if err != nil {
		return storage.VersionedValue{}, err
	}
	if err := s.wal.Append(ctx, namespace, key, vv); err != nil {
		return storage.VersionedValue{}, err
	}
	s.query.NotifyWrite(namespace)
	return vv, nil
}

// ListKeys returns the sorted list of keys in namespace.
func (s *Store) ListKeys(namespace string) []string { return s.storage.ListKeys(namespace) }

// ListNamespaces returns every namespace with at least one live key,
// excluding the reserved "_auth" namespace and internal vector-document
// namespaces, which are implementation detail rather than user data.
func (s *Store) ListNamespaces() []string {
	var out []string
	for _, ns := range s.storage.ListNamespaces() {
		if reservedNamespaceErr(ns) != nil {
			continue
		}
		out = append(out, ns)
	}
	return out
}

// Query evaluates spec against namespace's current documents.
func (s *Store) Query(namespace string, spec query.Spec) query.Result {
	return s.query.Query(namespace, spec)
}

// CreateView, RefreshView, QueryView, DeleteView, and ListViews expose
// the query engine's materialized-view lifecycle directly.
func (s *Store) CreateView(namespace string, spec query.Spec, autoRefresh bool) *query.View {
	return s.query.CreateView(namespace, spec, autoRefresh)
}

func (s *Store) RefreshView(id string) (*query.View, error) { return s.query.RefreshView(id) }
func (s *Store) QueryView(id string) (*query.View, error)   { return s.query.QueryView(id) }
func (s *Store) DeleteView(id string) error                 { return s.query.DeleteView(id) }
func (s *Store) ListViews() []*query.View                   { return s.query.ListViews() }

// Embed attaches v to (namespace, key): the vector is persisted as an
// ordinary versioned document (so it gets the same history and WAL/
// snapshot durability as everything else) and added to namespace's
// in-memory causal vector index within the same call, so a search
// issued immediately afterward sees it.
func (s *Store) Embed(ctx context.Context, namespace, key string, v vector.Vector, metadata map[string]any) error {
	if err := reservedNamespaceErr(namespace); err != nil {
		return err
	}
	doc := map[string]any{"data": v.Data, "model": v.Model}
	if metadata != nil {
		doc["metadata"] = metadata
	}
	if _, err := s.putInternal(ctx, vectorNamespace(namespace), key, doc); err != nil {
		return err
	}
	version := s.nextVersion()
	return s.indexFor(namespace).Add(key, v, version)
}

// EmbedSearch finds the topK vectors nearest queryVec. namespace empty
// means search every namespace that has embeddings. Results below
// opts.Threshold are dropped; a zero Threshold disables filtering.
func (s *Store) EmbedSearch(namespace string, queryVec vector.Vector, opts EmbedOptions) ([]EmbedResult, error) {
	return s.searchAcross(namespace, opts, func(idx *causalindex.Index) []hnsw.Result {
		return idx.Search(queryVec, opts.TopK)
	})
}

// EmbedSearchAt is EmbedSearch as of a prior causalindex.VersionID,
// bounded by snapshot granularity (see causalindex.Index.SearchAt).
func (s *Store) EmbedSearchAt(namespace string, queryVec vector.Vector, opts EmbedOptions, version causalindex.VersionID) ([]EmbedResult, error) {
	return s.searchAcross(namespace, opts, func(idx *causalindex.Index) []hnsw.Result {
		return idx.SearchAt(queryVec, opts.TopK, version)
	})
}

func (s *Store) searchAcross(namespace string, opts EmbedOptions, search func(*causalindex.Index) []hnsw.Result) ([]EmbedResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	var namespaces []string
	if namespace != "" {
		namespaces = []string{namespace}
	} else {
		s.indexMu.Lock()
		for ns := range s.indexes {
			namespaces = append(namespaces, ns)
		}
		s.indexMu.Unlock()
	}

	var out []EmbedResult
	for _, ns := range namespaces {
		idx := s.indexFor(ns)
		prefix := ns + ":"
		for _, r := range search(idx) {
			if opts.Threshold > 0 && r.Score < opts.Threshold {
				continue
			}
			key := r.ID
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				key = key[len(prefix):]
			}
			if opts.ModelFilter != "" && !s.vectorModelMatches(ns, key, opts.ModelFilter) {
				continue
			}
			out = append(out, EmbedResult{Namespace: ns, Key: key, Score: r.Score})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > opts.TopK {
		out = out[:opts.TopK]
	}
	return out, nil
}

// vectorModelMatches looks up the embedding document persisted for
// (namespace, key) and reports whether its model matches want.
func (s *Store) vectorModelMatches(namespace, key, want string) bool {
	vv, err := s.storage.Get(vectorNamespace(namespace), key)
	if err != nil {
		return false
	}
	doc, ok := vv.Value.(map[string]any)
	if !ok {
		return false
	}
	vd, err := docToVector(doc)
	if err != nil {
		return false
	}
	return vd.Model == want
}

// PutCausal applies a causally-ordered write under vc, resolving
// conflicts by vector-clock dominance, and appends the resulting write
// to the WAL exactly when it was actually applied.
func (s *Store) PutCausal(ctx context.Context, namespace, key string, value any, vc clock.Clock) (replication.PutResult, error) {
	if err := reservedNamespaceErr(namespace); err != nil {
		return replication.PutResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return replication.PutResult{}, err
	}
	result, err := s.replicator.PutCausal(namespace, key, value, vc)
	if err != nil {
		return replication.PutResult{}, err
	}
	if result.Outcome != replication.Rejected {
		if err := s.wal.Append(ctx, namespace, key, result.Value); err != nil {
			return replication.PutResult{}, err
		}
		s.query.NotifyWrite(namespace)
	}
	return result, nil
}

// DeleteCausal records a causal tombstone for (namespace, key).
func (s *Store) DeleteCausal(ctx context.Context, namespace, key string, vc clock.Clock) (replication.Tombstone, error) {
	if err := reservedNamespaceErr(namespace); err != nil {
		return replication.Tombstone{}, err
	}
	if err := ctx.Err(); err != nil {
		return replication.Tombstone{}, err
	}
	ts, err := s.replicator.DeleteCausal(namespace, key, vc, s.replicator.NodeID())
	if err != nil {
		return replication.Tombstone{}, err
	}
	if vv, getErr := s.storage.Get(namespace, key); getErr == nil {
		if err := s.wal.Append(ctx, namespace, key, vv); err != nil {
			return replication.Tombstone{}, err
		}
	}
	s.query.NotifyWrite(namespace)
	return ts, nil
}

// Auth exposes the identity/capability manager (C10) for callers that
// need to mine identities, issue challenges, or grant capabilities.
// Put, Delete and the store's other write methods perform no
// capability check; Authorize is a separate call.
func (s *Store) Auth() *auth.Manager { return s.authManager }

// Authorize reports whether identityKey holds a capability granting at
// least required on (namespace, key), per P9.
func (s *Store) Authorize(identityKey, namespace, key string, required auth.Permission) error {
	_, err := s.authManager.Authorize(identityKey, namespace, key, required)
	return err
}

// Snapshot writes a full snapshot of current state to disk and then
// truncates the WAL, since the new snapshot now covers everything the
// truncated WAL would have replayed.
func (s *Store) Snapshot(ctx context.Context) error {
	if err := persistence.Save(ctx, s.storage, s.snapshotPath, s.logger); err != nil {
		return err
	}
	return s.wal.Truncate()
}

// Close releases the WAL file handle. It does not snapshot; callers
// that want a durable shutdown should call Snapshot first.
func (s *Store) Close() error {
	return s.wal.Close()
}
