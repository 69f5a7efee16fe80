package query

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kittclouds/korudelta/internal/storeerr"
)

// DefaultRefreshDebounce is the default coalescing window for
// auto-refresh: multiple writes to a view's source namespace within
// this window trigger a single refresh.
const DefaultRefreshDebounce = 100 * time.Millisecond

// View is a named, cached evaluation of a Spec against a source
// namespace.
type View struct {
	ID              string
	SourceNamespace string
	Spec            Spec
	AutoRefresh     bool
	Result          Result
	LastRefreshed   time.Time
}

type viewRegistry struct {
	mu       sync.RWMutex
	views    map[string]*View
	byNS     map[string][]string // namespace -> view IDs with AutoRefresh set
	timers   map[string]*time.Timer
	debounce time.Duration
}

func newViewRegistry() *viewRegistry {
	return &viewRegistry{
		views:    make(map[string]*View),
		byNS:     make(map[string][]string),
		timers:   make(map[string]*time.Timer),
		debounce: DefaultRefreshDebounce,
	}
}

// CreateView evaluates spec against namespace and caches the result
// under a fresh ID. If autoRefresh is set, subsequent NotifyWrite calls
// for namespace schedule a debounced re-evaluation.
func (e *Engine) CreateView(namespace string, spec Spec, autoRefresh bool) *View {
	v := &View{
		ID:              uuid.NewString(),
		SourceNamespace: namespace,
		Spec:            spec,
		AutoRefresh:     autoRefresh,
		Result:          e.Query(namespace, spec),
		LastRefreshed:   time.Now(),
	}

	r := e.views
	r.mu.Lock()
	r.views[v.ID] = v
	if autoRefresh {
		r.byNS[namespace] = append(r.byNS[namespace], v.ID)
	}
	r.mu.Unlock()

	return v
}

// RefreshView re-evaluates a view's query against current state.
func (e *Engine) RefreshView(id string) (*View, error) {
	r := e.views
	r.mu.RLock()
	v, ok := r.views[id]
	r.mu.RUnlock()
	if !ok {
		return nil, storeerr.ViewNotFound
	}

	result := e.Query(v.SourceNamespace, v.Spec)

	r.mu.Lock()
	v.Result = result
	v.LastRefreshed = time.Now()
	r.mu.Unlock()

	return v, nil
}

// QueryView returns a view's cached result without re-evaluating it.
func (e *Engine) QueryView(id string) (*View, error) {
	r := e.views
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	if !ok {
		return nil, storeerr.ViewNotFound
	}
	return v, nil
}

// DeleteView removes a view and cancels any pending debounced refresh.
func (e *Engine) DeleteView(id string) error {
	r := e.views
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.views[id]
	if !ok {
		return storeerr.ViewNotFound
	}
	delete(r.views, id)

	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	ids := r.byNS[v.SourceNamespace]
	for i, existing := range ids {
		if existing == id {
			r.byNS[v.SourceNamespace] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// ListViews returns every registered view.
func (e *Engine) ListViews() []*View {
	r := e.views
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	return out
}

// NotifyWrite schedules a debounced refresh for every auto-refresh
// view sourced from namespace. Multiple notifications within the
// debounce window collapse into a single refresh, fired one debounce
// window (DefaultRefreshDebounce unless changed) after the last one.
func (e *Engine) NotifyWrite(namespace string) {
	r := e.views
	r.mu.Lock()
	ids := append([]string(nil), r.byNS[namespace]...)
	r.mu.Unlock()

	for _, id := range ids {
		id := id
		r.mu.Lock()
		if t, exists := r.timers[id]; exists {
			t.Stop()
		}
		r.timers[id] = time.AfterFunc(r.debounce, func() {
			_, _ = e.RefreshView(id)
		})
		r.mu.Unlock()
	}
}
