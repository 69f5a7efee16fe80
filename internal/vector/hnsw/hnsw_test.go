package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/korudelta/internal/vector"
)

func TestAddAndSearchExactMatch(t *testing.T) {
	idx := New(DefaultConfig(), 42)

	require.NoError(t, idx.Add("a", vector.New([]float32{1, 0, 0}, "m")))
	require.NoError(t, idx.Add("b", vector.New([]float32{0, 1, 0}, "m")))
	require.NoError(t, idx.Add("c", vector.New([]float32{0, 0, 1}, "m")))

	results := idx.Search(vector.New([]float32{1, 0, 0}, "m"), 1)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestSearchReturnsTopKSortedDescending(t *testing.T) {
	idx := New(DefaultConfig(), 42)
	require.NoError(t, idx.Add("a", vector.New([]float32{1, 0}, "m")))
	require.NoError(t, idx.Add("b", vector.New([]float32{0.9, 0.1}, "m")))
	require.NoError(t, idx.Add("c", vector.New([]float32{-1, 0}, "m")))

	results := idx.Search(vector.New([]float32{1, 0}, "m"), 3)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestModelFilterRejectsMismatchedInsert(t *testing.T) {
	idx := New(DefaultConfig(), 42).WithModelFilter("model-a")
	err := idx.Add("a", vector.New([]float32{1, 0}, "model-b"))
	assert.Error(t, err)
}

func TestModelFilterReturnsEmptyOnMismatchedQuery(t *testing.T) {
	idx := New(DefaultConfig(), 42).WithModelFilter("model-a")
	require.NoError(t, idx.Add("a", vector.New([]float32{1, 0}, "model-a")))

	results := idx.Search(vector.New([]float32{1, 0}, "model-b"), 1)
	assert.Empty(t, results)
}

func TestRemoveUpdatesEntryPoint(t *testing.T) {
	idx := New(DefaultConfig(), 42)
	require.NoError(t, idx.Add("a", vector.New([]float32{1, 0}, "m")))
	require.NoError(t, idx.Add("b", vector.New([]float32{0, 1}, "m")))

	require.NoError(t, idx.Remove("a"))
	assert.Equal(t, 1, idx.Len())

	results := idx.Search(vector.New([]float32{0, 1}, "m"), 1)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestEmptyIndexSearchReturnsEmpty(t *testing.T) {
	idx := New(DefaultConfig(), 42)
	results := idx.Search(vector.New([]float32{1, 0}, "m"), 5)
	assert.Empty(t, results)
}

func TestClearRemovesEverything(t *testing.T) {
	idx := New(DefaultConfig(), 42)
	require.NoError(t, idx.Add("a", vector.New([]float32{1, 0}, "m")))
	idx.Clear()
	assert.True(t, idx.IsEmpty())
}

func TestDeterministicLayerAssignmentWithSameSeed(t *testing.T) {
	idx1 := New(DefaultConfig(), 42)
	idx2 := New(DefaultConfig(), 42)

	vecs := []vector.Vector{
		vector.New([]float32{1, 0, 0}, "m"),
		vector.New([]float32{0, 1, 0}, "m"),
		vector.New([]float32{0, 0, 1}, "m"),
		vector.New([]float32{1, 1, 0}, "m"),
	}
	ids := []string{"a", "b", "c", "d"}

	for i, v := range vecs {
		require.NoError(t, idx1.Add(ids[i], v))
		require.NoError(t, idx2.Add(ids[i], v))
	}

	r1 := idx1.Search(vecs[0], 4)
	r2 := idx2.Search(vecs[0], 4)
	assert.Equal(t, r1, r2)
}
