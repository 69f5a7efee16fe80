package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/korudelta/internal/storeerr"
)

// S1: basic put/get.
func TestPutGet(t *testing.T) {
	s := New()
	_, err := s.Put("users", "alice", map[string]any{"name": "Alice", "age": float64(30)})
	require.NoError(t, err)

	got, err := s.Get("users", "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice", "age": float64(30)}, got.Value)

	hist, err := s.History("users", "alice")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestGetKeyNotFound(t *testing.T) {
	s := New()
	_, err := s.Get("users", "nobody")
	assert.ErrorIs(t, err, storeerr.KeyNotFound)
}

// S2: time travel.
func TestGetAtTimeTravel(t *testing.T) {
	s := New()

	_, err := s.Put("doc", "k", map[string]any{"v": float64(1)})
	require.NoError(t, err)
	t0 := time.Now()
	time.Sleep(2 * time.Millisecond)

	_, err = s.Put("doc", "k", map[string]any{"v": float64(2)})
	require.NoError(t, err)
	t1 := time.Now()
	time.Sleep(2 * time.Millisecond)

	_, err = s.Put("doc", "k", map[string]any{"v": float64(3)})
	require.NoError(t, err)
	t2 := time.Now()

	v0, err := s.GetAt("doc", "k", t0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(1)}, v0.Value)

	v1, err := s.GetAt("doc", "k", t1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(2)}, v1.Value)

	v2, err := s.GetAt("doc", "k", t2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(3)}, v2.Value)

	current, err := s.Get("doc", "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(3)}, current.Value)

	hist, err := s.History("doc", "k")
	require.NoError(t, err)
	assert.Len(t, hist, 3)
}

func TestGetAtBeforeAnyWrite(t *testing.T) {
	s := New()
	_, err := s.Put("doc", "k", map[string]any{"v": float64(1)})
	require.NoError(t, err)

	_, err = s.GetAt("doc", "k", time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, storeerr.NoValueAtTimestamp)
}

// S3: dedup.
func TestDedupSharesValueStorage(t *testing.T) {
	s := New()
	vv1, err := s.Put("a", "k1", map[string]any{"x": float64(1)})
	require.NoError(t, err)
	vv2, err := s.Put("b", "k2", map[string]any{"x": float64(1)})
	require.NoError(t, err)

	assert.Equal(t, vv1.DistinctionID, vv2.DistinctionID)
}

func TestDeleteWritesTombstoneValue(t *testing.T) {
	s := New()
	_, err := s.Put("doc", "k", map[string]any{"v": float64(1)})
	require.NoError(t, err)

	_, err = s.Delete("doc", "k")
	require.NoError(t, err)

	got, err := s.Get("doc", "k")
	require.NoError(t, err)
	assert.Nil(t, got.Value)

	hist, err := s.History("doc", "k")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestConcurrentWritesToDifferentKeys(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = s.Put("ns", keyFor(n), map[string]any{"n": float64(j)})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.KeyCount())
}

func keyFor(n int) string {
	return string(rune('a' + n))
}

func TestListNamespacesAndKeysSorted(t *testing.T) {
	s := New()
	_, _ = s.Put("b", "z", 1.0)
	_, _ = s.Put("a", "y", 1.0)
	_, _ = s.Put("a", "x", 1.0)

	assert.Equal(t, []string{"a", "b"}, s.ListNamespaces())
	assert.Equal(t, []string{"x", "y"}, s.ListKeys("a"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	_, _ = s.Put("users", "alice", map[string]any{"name": "Alice"})
	_, _ = s.Put("users", "alice", map[string]any{"name": "Alice", "age": float64(30)})
	_, _ = s.Put("users", "bob", map[string]any{"name": "Bob"})

	current, historyLog := s.CreateSnapshot()
	restored := FromSnapshot(current, historyLog)

	alice, err := restored.Get("users", "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice", "age": float64(30)}, alice.Value)

	hist, err := restored.History("users", "alice")
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	assert.Equal(t, s.KeyCount(), restored.KeyCount())
}
