package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jassi-singh/ember-kv/internal/format"
	"github.com/jassi-singh/ember-kv/internal/index"
	"github.com/jassi-singh/ember-kv/internal/storage"
)

// DefaultCompactBytes is the uncompacted-byte threshold that triggers
// compaction of the active log file.
const DefaultCompactBytes = 1_000_000

// Options tunes the log-structured engine.
type Options struct {
	// CompactBytes overrides DefaultCompactBytes when positive.
	CompactBytes int64
}

// KV is the log-structured storage engine. All writes are appended to a
// single active log file; an in-memory index maps each key to the
// location of its latest record. When bytes superseded by later writes
// cross the compaction threshold, the live records are rewritten into a
// fresh log file and the old one is deleted.
//
// The writer lock serializes the append path (position, write, flush,
// index update). Reads take the reader lock shared, so they run
// concurrently with each other and with writers; compaction takes it
// exclusively only for the instant it swaps the reader and index to the
// new file.
type KV struct {
	dir          string
	compactBytes int64

	writerMu sync.Mutex
	appender *storage.Appender

	readerMu sync.RWMutex
	reader   *storage.Reader
	idx      *index.Index

	uncompacted atomic.Int64
}

// OpenKV opens the log-structured engine on dir, creating it if needed.
// The newest existing log file becomes the active file and is replayed to
// rebuild the index; a fresh file is created when none exist.
func OpenKV(dir string, opts Options) (*KV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	paths, err := storage.List(dir)
	if err != nil {
		return nil, err
	}

	active := storage.Newest(paths)
	if active == "" {
		active = storage.NewPath(dir)
	}

	appender, err := storage.OpenAppender(active)
	if err != nil {
		return nil, err
	}

	idx := index.New()
	if err := replay(active, idx); err != nil {
		appender.Close()
		return nil, err
	}

	reader, err := storage.OpenReader(active)
	if err != nil {
		appender.Close()
		return nil, err
	}

	compactBytes := opts.CompactBytes
	if compactBytes <= 0 {
		compactBytes = DefaultCompactBytes
	}

	slog.Info("engine: opened log-structured engine",
		"dir", dir,
		"active_file", active,
		"keys", idx.Len(),
		"log_files", len(paths))

	return &KV{
		dir:          dir,
		compactBytes: compactBytes,
		appender:     appender,
		reader:       reader,
		idx:          idx,
	}, nil
}

// replay scans the log file from the beginning and rebuilds the index.
// Set records overwrite, tombstones remove. A truncated record at the end
// of the file ends the scan; everything before it is kept.
func replay(path string, idx *index.Index) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file %s for replay: %w", path, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	offset := int64(0)
	for {
		record, n, err := format.ReadRecord(reader)
		if err == io.EOF {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			slog.Warn("engine: incomplete record at end of log file, stopping replay",
				"path", path,
				"offset", offset)
			break
		}
		if err != nil {
			return fmt.Errorf("failed to replay record at offset %d in %s: %w", offset, path, err)
		}

		key := string(record.Key)
		if record.Flag == format.FlagTombstone {
			idx.Remove(key)
		} else {
			idx.Insert(key, index.Location{Offset: offset, Size: uint32(n)})
		}
		offset += int64(n)
	}
	return nil
}

// Set stores a key-value pair. The record is appended to the active file
// and flushed before the index is updated, so a location published in the
// index always points at durable bytes.
func (e *KV) Set(key, value string) error {
	record := format.NewSet(key, value, uint64(time.Now().Unix()))
	data, err := record.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode record for key %s: %w", key, err)
	}

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	offset, err := e.appender.Append(data)
	if err != nil {
		return fmt.Errorf("failed to append record for key %s: %w", key, err)
	}
	if err := e.appender.Flush(); err != nil {
		return fmt.Errorf("failed to flush record for key %s: %w", key, err)
	}

	prev, had := e.idx.Insert(key, index.Location{Offset: offset, Size: uint32(len(data))})
	if had && e.addUncompacted(int64(prev.Size)) {
		if err := e.compactLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves the value for key, reading the record at its indexed
// location. Returns false with no error when the key is absent.
func (e *KV) Get(key string) (string, bool, error) {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()

	loc, ok := e.idx.Get(key)
	if !ok {
		return "", false, nil
	}

	data, err := e.reader.ReadAt(loc.Offset, loc.Size)
	if err != nil {
		return "", false, fmt.Errorf("failed to read record for key %s: %w", key, err)
	}

	record, err := format.Decode(data)
	if err != nil {
		return "", false, fmt.Errorf("failed to decode record for key %s: %w", key, err)
	}
	if record.Flag == format.FlagTombstone {
		return "", false, fmt.Errorf("%w: index points at tombstone for key %s", format.ErrCorrupt, key)
	}

	return string(record.Value), true, nil
}

// Remove deletes a key by writing a tombstone record. Returns
// ErrNonExistentKey when the key is not present.
func (e *KV) Remove(key string) error {
	record := format.NewTombstone(key, uint64(time.Now().Unix()))
	data, err := record.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode tombstone for key %s: %w", key, err)
	}

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	prev, had := e.idx.Remove(key)
	if !had {
		return ErrNonExistentKey
	}

	if _, err := e.appender.Append(data); err != nil {
		e.idx.Insert(key, prev)
		return fmt.Errorf("failed to append tombstone for key %s: %w", key, err)
	}
	if err := e.appender.Flush(); err != nil {
		e.idx.Insert(key, prev)
		return fmt.Errorf("failed to flush tombstone for key %s: %w", key, err)
	}

	// Both the superseded record and its tombstone are dead weight now.
	if e.addUncompacted(int64(prev.Size) + int64(len(data))) {
		if err := e.compactLocked(); err != nil {
			return err
		}
	}
	return nil
}

// addUncompacted adds n to the uncompacted-byte counter and reports
// whether the total crossed the compaction threshold.
func (e *KV) addUncompacted(n int64) bool {
	return e.uncompacted.Add(n) >= e.compactBytes
}

// compactLocked rewrites every live record into a fresh log file and
// swaps the engine over to it. The caller must hold the writer lock, so
// no Set or Remove can observe a half-switched state. Re-checks the
// counter first so that a concurrent writer that also saw the threshold
// crossed no-ops once the bytes are reclaimed.
func (e *KV) compactLocked() error {
	if e.uncompacted.Load() < e.compactBytes {
		return nil
	}

	newPath := storage.NewPath(e.dir)
	newAppender, err := storage.OpenAppender(newPath)
	if err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}

	abort := func(cause error) error {
		newAppender.Close()
		if err := os.Remove(newPath); err != nil {
			slog.Error("engine: failed to remove partial compaction file",
				"path", newPath,
				"error", err)
		}
		return fmt.Errorf("compaction failed: %w", cause)
	}

	newIdx := index.New()
	var copyErr error
	e.idx.Range(func(key string, loc index.Location) bool {
		data, err := e.reader.ReadAt(loc.Offset, loc.Size)
		if err != nil {
			copyErr = err
			return false
		}
		offset, err := newAppender.Append(data)
		if err != nil {
			copyErr = err
			return false
		}
		newIdx.Insert(key, index.Location{Offset: offset, Size: loc.Size})
		return true
	})
	if copyErr != nil {
		return abort(copyErr)
	}
	if err := newAppender.Flush(); err != nil {
		return abort(err)
	}

	newReader, err := storage.OpenReader(newPath)
	if err != nil {
		return abort(err)
	}

	e.readerMu.Lock()
	oldReader := e.reader
	e.reader = newReader
	e.idx = newIdx
	e.readerMu.Unlock()

	oldAppender := e.appender
	e.appender = newAppender
	e.uncompacted.Store(0)

	if err := oldAppender.Close(); err != nil {
		slog.Error("engine: failed to close old appender after compaction",
			"error", err)
	}
	if err := oldReader.Close(); err != nil {
		slog.Error("engine: failed to close old reader after compaction",
			"error", err)
	}

	// Remove every superseded log file, including leftovers from a crash
	// mid-compaction.
	paths, err := storage.List(e.dir)
	if err != nil {
		slog.Error("engine: failed to list log files after compaction",
			"error", err)
		paths = nil
	}
	for _, path := range paths {
		if path == newPath {
			continue
		}
		if err := os.Remove(path); err != nil {
			slog.Error("engine: failed to remove old log file",
				"path", path,
				"error", err)
		}
	}

	slog.Info("engine: compaction complete",
		"active_file", newPath,
		"keys", newIdx.Len(),
		"size", newAppender.Position())
	return nil
}

// Close flushes pending writes and releases the log file handles.
func (e *KV) Close() error {
	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	slog.Info("engine: closing log-structured engine",
		"dir", e.dir,
		"keys", e.idx.Len())

	if err := e.appender.Close(); err != nil {
		return err
	}

	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	return e.reader.Close()
}
