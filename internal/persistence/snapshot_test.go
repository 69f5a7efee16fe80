package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/korudelta/internal/storage"
)

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

// R1: snapshot save/load round-trip preserves current state and history.
func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	st := storage.New()
	_, err := st.Put("notes", "a", map[string]any{"v": float64(1)})
	require.NoError(t, err)
	_, err = st.Put("notes", "a", map[string]any{"v": float64(2)})
	require.NoError(t, err)
	_, err = st.Put("notes", "b", map[string]any{"v": float64(9)})
	require.NoError(t, err)

	require.NoError(t, Save(context.Background(), st, path, discardLogger()))
	assert.True(t, Exists(path))

	loaded, err := Load(context.Background(), path, discardLogger())
	require.NoError(t, err)

	got, err := loaded.Get("notes", "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(2)}, got.Value)

	hist, err := loaded.History("notes", "a")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	bad := Snapshot{Version: 999}
	data, err := json.Marshal(bad)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(context.Background(), path, discardLogger())
	assert.Error(t, err)
}

func TestSaveRespectsCancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Save(ctx, storage.New(), path, discardLogger())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, Exists(path))
}

func TestExistsFalseForMissingFile(t *testing.T) {
	assert.False(t, Exists(filepath.Join(t.TempDir(), "missing.json")))
}
