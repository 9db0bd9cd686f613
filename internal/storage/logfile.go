// Package storage provides log file operations for the key-value store.
// It manages timestamped log files under the database directory, buffered
// end-of-file appends, and positional reads that do not disturb the append
// position.
package storage

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Extension is the suffix shared by every log file in a database directory.
const Extension = ".kvs"

var (
	tickMu   sync.Mutex
	lastTick int64
)

// nextTick returns a strictly increasing nanosecond timestamp. Two calls
// landing on the same wall-clock tick get consecutive values, so file
// names derived from it are unique and ordered.
func nextTick() int64 {
	tickMu.Lock()
	defer tickMu.Unlock()

	tick := time.Now().UnixNano()
	if tick <= lastTick {
		tick = lastTick + 1
	}
	lastTick = tick
	return tick
}

// NewPath generates a fresh, unique log file path under dir derived from a
// monotonic wall-clock timestamp.
func NewPath(dir string) string {
	return filepath.Join(dir, strconv.FormatInt(nextTick(), 10)+Extension)
}

// List returns the paths of all log files under dir, in arbitrary order.
func List(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files in %s: %w", dir, err)
	}
	return paths, nil
}

// Newest returns the log file with the highest timestamp stem, or the
// empty string if paths is empty. Files whose stem is not numeric are
// ignored.
func Newest(paths []string) string {
	var newest string
	var newestTick int64 = -1
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), Extension)
		tick, err := strconv.ParseInt(stem, 10, 64)
		if err != nil {
			slog.Warn("storage: skipping log file with non-numeric name",
				"path", path)
			continue
		}
		if tick > newestTick {
			newestTick = tick
			newest = path
		}
	}
	return newest
}

// Reader provides positional reads on a log file. Concurrent ReadAt calls
// are safe and do not move any file offset.
type Reader struct {
	file *os.File
}

// OpenReader opens a read-only positional handle on the log file at path.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s for reading: %w", path, err)
	}
	return &Reader{file: file}, nil
}

// ReadAt reads size bytes from the file starting at offset.
// Returns the read data and any error encountered.
func (r *Reader) ReadAt(offset int64, size uint32) ([]byte, error) {
	data := make([]byte, size)
	if _, err := r.file.ReadAt(data, offset); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at offset %d: %w", size, offset, err)
	}
	return data, nil
}

// Path returns the file path the reader was opened on.
func (r *Reader) Path() string {
	return r.file.Name()
}

// Close closes the underlying file handle.
func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close reader for %s: %w", r.file.Name(), err)
	}
	return nil
}

// Appender is a buffered end-of-file sink for a log file. Flushing is
// under caller control; Position accounts for bytes still sitting in the
// buffer. Appender is not safe for concurrent use; callers serialize
// access through the engine's writer lock.
type Appender struct {
	file   *os.File
	buffer *bufio.Writer
	pos    int64
}

// OpenAppender opens (creating if needed) the log file at path for
// appending and positions the writer at end-of-file.
func OpenAppender(path string) (*Appender, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s for appending: %w", path, err)
	}

	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek to end of %s: %w", path, err)
	}

	slog.Debug("storage: log file opened for appending",
		"path", path,
		"size", end)

	return &Appender{
		file:   file,
		buffer: bufio.NewWriter(file),
		pos:    end,
	}, nil
}

// Position returns the offset at which the next Append will write.
func (a *Appender) Position() int64 {
	return a.pos
}

// Append writes data at end-of-file through the buffer and returns the
// offset the data starts at.
func (a *Appender) Append(data []byte) (int64, error) {
	offset := a.pos
	if _, err := a.buffer.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write %d bytes at offset %d: %w", len(data), offset, err)
	}
	a.pos += int64(len(data))
	return offset, nil
}

// Flush drains the write buffer to the file and syncs it to the OS.
func (a *Appender) Flush() error {
	if err := a.buffer.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file after flush: %w", err)
	}
	return nil
}

// Path returns the file path the appender writes to.
func (a *Appender) Path() string {
	return a.file.Name()
}

// Close flushes any remaining buffered data and closes the file.
func (a *Appender) Close() error {
	if err := a.Flush(); err != nil {
		slog.Error("storage: failed to flush buffer before close",
			"path", a.file.Name(),
			"error", err)
		// Continue to close the file even if flush fails
	}
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("failed to close appender for %s: %w", a.file.Name(), err)
	}
	return nil
}
