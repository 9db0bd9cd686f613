// Package storage provides unit tests for log file operations.
package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPath_Unique(t *testing.T) {
	dir := t.TempDir()

	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		path := NewPath(dir)
		require.False(t, seen[path], "duplicate path %s", path)
		require.True(t, filepath.Ext(path) == Extension)
		seen[path] = true
	}
}

func TestNewPath_UniqueConcurrent(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				path := NewPath(dir)
				mu.Lock()
				if seen[path] {
					t.Errorf("duplicate path %s", path)
				}
				seen[path] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestListAndNewest(t *testing.T) {
	dir := t.TempDir()

	paths, err := List(dir)
	require.NoError(t, err)
	require.Empty(t, paths)

	var created []string
	for i := 0; i < 3; i++ {
		path := NewPath(dir)
		require.NoError(t, os.WriteFile(path, nil, 0644))
		created = append(created, path)
	}
	// A non-log file and a non-numeric log file must not win.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.info"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.kvs"), nil, 0644))

	paths, err = List(dir)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	require.Equal(t, created[len(created)-1], Newest(paths))
}

func TestNewest_Empty(t *testing.T) {
	require.Equal(t, "", Newest(nil))
}

func TestAppender_OffsetsAndFlush(t *testing.T) {
	dir := t.TempDir()
	path := NewPath(dir)

	appender, err := OpenAppender(path)
	require.NoError(t, err)
	defer appender.Close()

	require.Equal(t, int64(0), appender.Position())

	offset, err := appender.Append([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(0), offset)

	offset, err = appender.Append([]byte("world!"))
	require.NoError(t, err)
	require.Equal(t, int64(5), offset)
	require.Equal(t, int64(11), appender.Position())

	require.NoError(t, appender.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "helloworld!", string(data))
}

func TestAppender_ReopenResumesAtEnd(t *testing.T) {
	dir := t.TempDir()
	path := NewPath(dir)

	appender, err := OpenAppender(path)
	require.NoError(t, err)
	_, err = appender.Append([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, appender.Close())

	appender, err = OpenAppender(path)
	require.NoError(t, err)
	defer appender.Close()
	require.Equal(t, int64(3), appender.Position())

	offset, err := appender.Append([]byte("def"))
	require.NoError(t, err)
	require.Equal(t, int64(3), offset)
	require.NoError(t, appender.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(data))
}

func TestReader_ConcurrentReadAt(t *testing.T) {
	dir := t.TempDir()
	path := NewPath(dir)
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(offset int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				data, err := reader.ReadAt(offset, 2)
				if err != nil {
					t.Errorf("ReadAt failed: %v", err)
					return
				}
				want := string([]byte{byte('0' + offset), byte('0' + offset + 1)})
				if string(data) != want {
					t.Errorf("ReadAt(%d) = %q, want %q", offset, data, want)
				}
			}
		}(int64(i % 8))
	}
	wg.Wait()
}

func TestReader_ShortRead(t *testing.T) {
	dir := t.TempDir()
	path := NewPath(dir)
	require.NoError(t, os.WriteFile(path, []byte("short"), 0644))

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadAt(0, 100)
	require.Error(t, err)
}
