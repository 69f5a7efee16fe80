// Package persistence implements C9: periodic full-state snapshots and
// a write-ahead log, so a Storage can be durably saved to and restored
// from disk between process restarts.
package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kittclouds/korudelta/internal/storage"
	"github.com/kittclouds/korudelta/internal/storeerr"
)

// SnapshotVersion is bumped whenever the on-disk snapshot schema
// changes incompatibly. Load refuses to read a mismatched version
// rather than risk silently misinterpreting it.
const SnapshotVersion = 1

// kvEntry and historyKV exist because storage.FullKey is a struct and
// cannot be a JSON object key; snapshots store current state and
// history as arrays of pairs instead of maps, matching
// original_source's Vec<(FullKey, VersionedValue)> representation.
type kvEntry struct {
	Key   storage.FullKey        `json:"key"`
	Value storage.VersionedValue `json:"value"`
}

type historyKV struct {
	Key      storage.FullKey          `json:"key"`
	Versions []storage.VersionedValue `json:"versions"`
}

// Snapshot is the on-disk representation of a Storage's full state.
type Snapshot struct {
	Version      int         `json:"version"`
	CurrentState []kvEntry   `json:"current_state"`
	HistoryLog   []historyKV `json:"history_log"`
}

// Save serializes store's full state to path as JSON, writing to a
// temp file and fsyncing before an atomic rename so a crash mid-write
// never leaves a corrupt snapshot in place of a good one. ctx is
// checked before the snapshot is built; a save already underway
// completes rather than leaving a stale temp file behind.
func Save(ctx context.Context, store *storage.Storage, path string, logger zerolog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current, historyLog := store.CreateSnapshot()

	snap := Snapshot{Version: SnapshotVersion}
	for k, v := range current {
		snap.CurrentState = append(snap.CurrentState, kvEntry{Key: k, Value: v})
	}
	for k, versions := range historyLog {
		snap.HistoryLog = append(snap.HistoryLog, historyKV{Key: k, Versions: versions})
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return storeerr.Wrap(storeerr.KindStorageError, "create snapshot directory", err)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return storeerr.Wrap(storeerr.KindSerializationError, "marshal snapshot", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return storeerr.Wrap(storeerr.KindStorageError, "open snapshot temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return storeerr.Wrap(storeerr.KindStorageError, "write snapshot temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return storeerr.Wrap(storeerr.KindStorageError, "fsync snapshot temp file", err)
	}
	if err := f.Close(); err != nil {
		return storeerr.Wrap(storeerr.KindStorageError, "close snapshot temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return storeerr.Wrap(storeerr.KindStorageError, "rename snapshot into place", err)
	}

	logger.Info().Str("path", path).Int("keys", len(snap.CurrentState)).Msg("snapshot saved")
	return nil
}

// Load reads and validates the snapshot at path, rebuilding a Storage
// via storage.FromSnapshot. A version mismatch is treated as
// unrecoverable: the caller decides whether to abort startup or
// discard the snapshot, but this function never guesses at a
// migration.
func Load(ctx context.Context, path string, logger zerolog.Logger) (*storage.Storage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindStorageError, "read snapshot", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, storeerr.Wrap(storeerr.KindSerializationError, "unmarshal snapshot", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, storeerr.Newf(storeerr.KindStorageError,
			"snapshot version %d is incompatible with expected version %d", snap.Version, SnapshotVersion)
	}

	current := make(map[storage.FullKey]storage.VersionedValue, len(snap.CurrentState))
	for _, e := range snap.CurrentState {
		current[e.Key] = e.Value
	}
	historyLog := make(map[storage.FullKey][]storage.VersionedValue, len(snap.HistoryLog))
	for _, e := range snap.HistoryLog {
		historyLog[e.Key] = e.Versions
	}

	logger.Info().Str("path", path).Int("keys", len(current)).Msg("snapshot loaded")
	return storage.FromSnapshot(current, historyLog), nil
}

// Exists reports whether a snapshot file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
