package causalindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/korudelta/internal/vector"
)

func testVector(data ...float32) vector.Vector {
	return vector.New(data, "test-model")
}

func TestAddAndSearchBasic(t *testing.T) {
	idx := WithDefaults("test", 42)

	require.NoError(t, idx.Add("v1", testVector(1, 0), 1))
	require.NoError(t, idx.Add("v2", testVector(0, 1), 2))

	assert.Equal(t, 2, idx.Len())

	results := idx.Search(testVector(0.9, 0.1), 10)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestEmptySearchReturnsEmpty(t *testing.T) {
	idx := WithDefaults("test", 42)
	results := idx.Search(testVector(1, 0), 10)
	assert.Empty(t, results)
}

func TestForceSnapshotPreservesVectorCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotThreshold = 100
	idx := New("test", cfg, 42)

	require.NoError(t, idx.Add("doc1", testVector(1, 0), 1))
	require.NoError(t, idx.Add("doc2", testVector(0, 1), 2))
	assert.Equal(t, 2, idx.Len())

	require.NoError(t, idx.ForceSnapshot())
	assert.Equal(t, 2, idx.Len())

	require.NoError(t, idx.Add("doc3", testVector(1, 1), 3))
	assert.Equal(t, 3, idx.Len())
}

func TestSnapshotIsTrueUnionNotJustPending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotThreshold = 1
	idx := New("test", cfg, 42)

	require.NoError(t, idx.Add("doc1", testVector(1, 0), 1))
	require.NoError(t, idx.Add("doc2", testVector(0, 1), 2))

	stats := idx.SnapshotStats()
	require.NotEmpty(t, stats.Versions)
	latest := stats.Versions[len(stats.Versions)-1]

	snap := idx.snapshots[latest]
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Index.Len(), "snapshot must include every vector added so far, not just the pending buffer")
}

func TestSearchAtExactSnapshotVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotThreshold = 100
	idx := New("test", cfg, 42)

	require.NoError(t, idx.Add("doc1", testVector(1, 0), 1))
	require.NoError(t, idx.Add("doc2", testVector(0, 1), 2))
	require.NoError(t, idx.ForceSnapshot())

	require.NoError(t, idx.Add("doc3", testVector(1, 1), 3))
	assert.Equal(t, 3, idx.Len())

	atV2 := idx.SearchAt(testVector(0.9, 0.9), 10, 2)
	ids := make(map[string]struct{})
	for _, r := range atV2 {
		ids[r.ID] = struct{}{}
	}
	_, hasDoc3 := ids["test:doc3"]
	assert.False(t, hasDoc3, "search_at an earlier version must not see a later addition")
}

func TestSearchAtFallsBackToNearestSnapshotBelow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotThreshold = 100
	idx := New("test", cfg, 42)

	require.NoError(t, idx.Add("doc1", testVector(1, 0), 1))
	require.NoError(t, idx.ForceSnapshot())

	require.NoError(t, idx.Add("doc2", testVector(0, 1), 5))

	results := idx.SearchAt(testVector(1, 0), 10, 3)
	found := false
	for _, r := range results {
		if r.ID == "test:doc1" {
			found = true
		}
		assert.NotEqual(t, "test:doc2", r.ID, "version 5 entry must not be visible at target version 3")
	}
	assert.True(t, found)
}

func TestSearchAtWithNoSnapshotsFiltersCurrent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotThreshold = 1000
	idx := New("test", cfg, 42)

	require.NoError(t, idx.Add("doc1", testVector(1, 0), 1))
	require.NoError(t, idx.Add("doc2", testVector(0, 1), 2))

	results := idx.SearchAt(testVector(1, 0), 10, 1)
	for _, r := range results {
		assert.NotEqual(t, "test:doc2", r.ID)
	}
}

func TestSnapshotEvictionIsFIFOBeyondMaxSnapshots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotThreshold = 1
	cfg.MaxSnapshots = 2
	idx := New("test", cfg, 42)

	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Add(fmt.Sprintf("doc%d", i), testVector(float32(i), 0), VersionID(i+1)))
	}

	stats := idx.SnapshotStats()
	assert.LessOrEqual(t, stats.SnapshotCount, 2)
	for _, v := range stats.Versions {
		assert.GreaterOrEqual(t, v, VersionID(3), "oldest snapshots should have been evicted")
	}
}

func TestPendingCountResetsAfterSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SnapshotThreshold = 2
	idx := New("test", cfg, 42)

	require.NoError(t, idx.Add("doc1", testVector(1, 0), 1))
	assert.Equal(t, 1, idx.PendingCount())

	require.NoError(t, idx.Add("doc2", testVector(0, 1), 2))
	assert.Equal(t, 0, idx.PendingCount())
}

func TestClearResetsEverything(t *testing.T) {
	idx := WithDefaults("test", 42)
	require.NoError(t, idx.Add("doc1", testVector(1, 0), 1))
	require.NoError(t, idx.ForceSnapshot())

	idx.Clear()
	assert.True(t, idx.IsEmpty())
	assert.Equal(t, VersionID(0), idx.CurrentVersion())
	assert.Zero(t, idx.SnapshotStats().SnapshotCount)
}
