package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"hash/crc32"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kittclouds/korudelta/internal/storage"
	"github.com/kittclouds/korudelta/internal/storeerr"
)

// WALEntry is a single write-ahead log record: enough to replay one
// Storage write via InsertDirect. Checksum guards against a torn write
// left by a crash mid-append.
type WALEntry struct {
	Sequence  uint64                 `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
	Namespace string                 `json:"namespace"`
	Key       string                 `json:"key"`
	Value     storage.VersionedValue `json:"value"`
	Checksum  uint32                 `json:"checksum"`
}

func (e *WALEntry) computeChecksum() uint32 {
	data, _ := json.Marshal(struct {
		Sequence  uint64                 `json:"sequence"`
		Timestamp time.Time              `json:"timestamp"`
		Namespace string                 `json:"namespace"`
		Key       string                 `json:"key"`
		Value     storage.VersionedValue `json:"value"`
	}{e.Sequence, e.Timestamp, e.Namespace, e.Key, e.Value})
	return crc32.ChecksumIEEE(data)
}

// VerifyChecksum reports whether the entry's stored checksum matches
// its recomputed one.
func (e *WALEntry) VerifyChecksum() bool {
	return e.Checksum == e.computeChecksum()
}

// WAL is an append-only, JSON-lines write-ahead log. Every write
// accepted by the top-level store is appended here before (or
// alongside) being applied to the in-memory Storage, so a crash
// between snapshots loses nothing beyond the last fsync.
type WAL struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	seq    uint64
	logger zerolog.Logger
}

// OpenWAL opens (creating if absent) the WAL file at path for
// appending.
func OpenWAL(path string, logger zerolog.Logger) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindStorageError, "open wal", err)
	}
	return &WAL{path: path, file: f, logger: logger}, nil
}

// Append writes a new entry for (namespace, key, vv), fsyncing before
// returning so the caller can treat a nil error as durable. ctx is
// checked before the write is attempted; once the write starts it runs
// to completion rather than leaving a half-written line.
func (w *WAL) Append(ctx context.Context, namespace, key string, vv storage.VersionedValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	entry := WALEntry{
		Sequence:  w.seq,
		Timestamp: time.Now(),
		Namespace: namespace,
		Key:       key,
		Value:     vv,
	}
	entry.Checksum = entry.computeChecksum()

	line, err := json.Marshal(entry)
	if err != nil {
		return storeerr.Wrap(storeerr.KindSerializationError, "marshal wal entry", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return storeerr.Wrap(storeerr.KindStorageError, "append wal entry", err)
	}
	return w.file.Sync()
}

// Truncate discards every entry written so far, used right after a
// successful snapshot since the snapshot now covers everything the WAL
// would have replayed.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		return storeerr.Wrap(storeerr.KindStorageError, "close wal before truncate", err)
	}
	f, err := os.OpenFile(w.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return storeerr.Wrap(storeerr.KindStorageError, "reopen wal after truncate", err)
	}
	w.file = f
	w.seq = 0
	return nil
}

// Close closes the underlying WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReplayWAL reads every entry from path, if it exists, and replays it
// into store via InsertDirect (idempotent on a duplicate write ID, so
// replaying a WAL whose tail was also captured by a snapshot is safe).
// An entry that fails its checksum is logged at warn and skipped
// rather than aborting the whole replay — a torn write at the tail
// from a crash mid-append should not lose everything before it.
func ReplayWAL(path string, store *storage.Storage, logger zerolog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, storeerr.Wrap(storeerr.KindStorageError, "open wal for replay", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	replayed := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry WALEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.Warn().Err(err).Msg("skipping malformed wal entry")
			continue
		}
		if !entry.VerifyChecksum() {
			logger.Warn().Uint64("sequence", entry.Sequence).Msg("wal checksum mismatch, skipping entry")
			continue
		}
		store.InsertDirect(entry.Namespace, entry.Key, entry.Value)
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return replayed, storeerr.Wrap(storeerr.KindStorageError, "scan wal", err)
	}

	logger.Info().Str("path", path).Int("entries", replayed).Msg("wal replayed")
	return replayed, nil
}
