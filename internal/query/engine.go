package query

import (
	"sort"
	"time"

	"github.com/kittclouds/korudelta/internal/storage"
)

// Record is a single row in a query result: the key within its
// namespace, its current value, when it was written, and the
// distinction ID of that version.
type Record struct {
	Key       string
	Value     any
	Timestamp time.Time
	VersionID string
}

// Spec describes a single query: an optional filter, a sort sequence,
// and a page (limit/offset applied after sort).
type Spec struct {
	Filter Filter
	Sort   []SortKey
	Limit  int
	Offset int
}

// Result is the shape returned to callers: the total number of
// matching records before pagination, and the requested page.
type Result struct {
	TotalCount int
	Records    []Record
}

// Engine evaluates Specs against a Storage's current-state and
// maintains materialized Views over it.
type Engine struct {
	storage *storage.Storage
	views   *viewRegistry
}

// New creates a query engine over store.
func New(store *storage.Storage) *Engine {
	return &Engine{
		storage: store,
		views:   newViewRegistry(),
	}
}

// Query evaluates spec against namespace's current-state documents.
func (e *Engine) Query(namespace string, spec Spec) Result {
	records := e.loadNamespace(namespace)
	return evaluate(records, spec)
}

// loadNamespace reads every current-state document in namespace,
// ordered by write timestamp ascending: this is the engine's proxy for
// insertion order, since Storage does not track a separate sequence
// counter and ties in the requested sort must fall back to something
// stable and meaningful.
func (e *Engine) loadNamespace(namespace string) []Record {
	keys := e.storage.ListKeys(namespace)
	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		vv, err := e.storage.Get(namespace, key)
		if err != nil {
			continue
		}
		records = append(records, Record{
			Key:       key,
			Value:     vv.Value,
			Timestamp: vv.Timestamp,
			VersionID: vv.DistinctionID,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

// evaluate applies spec's filter, sort, and page to records, which
// must already be in insertion order.
func evaluate(records []Record, spec Spec) Result {
	filtered := make([]Record, 0, len(records))
	for _, r := range records {
		if spec.Filter == nil {
			filtered = append(filtered, r)
			continue
		}
		doc, ok := r.Value.(map[string]any)
		if !ok {
			continue
		}
		if spec.Filter.Evaluate(doc) {
			filtered = append(filtered, r)
		}
	}

	applySort(filtered, spec.Sort)

	total := len(filtered)
	page := paginate(filtered, spec.Limit, spec.Offset)

	return Result{TotalCount: total, Records: page}
}

func paginate(records []Record, limit, offset int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []Record{}
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
