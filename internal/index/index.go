// Package index provides the in-memory key directory for the key-value store.
// It maps keys to the location of their latest record in the active log file.
// Reads are lock-free and writes to distinct keys do not serialize.
package index

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Location identifies the bytes of the latest record for a key within the
// active log file.
type Location struct {
	Offset int64  // Byte offset where the record starts
	Size   uint32 // Total size of the record (header + key + value)
}

// Index is a concurrent mapping from key to Location.
type Index struct {
	m *xsync.MapOf[string, Location]
}

// New creates an empty index.
func New() *Index {
	return &Index{m: xsync.NewMapOf[string, Location]()}
}

// Get returns the location for key, if any.
func (i *Index) Get(key string) (Location, bool) {
	return i.m.Load(key)
}

// Insert stores loc for key and returns the previous location, if any.
func (i *Index) Insert(key string, loc Location) (Location, bool) {
	var prev Location
	var had bool
	i.m.Compute(key, func(old Location, loaded bool) (Location, bool) {
		prev, had = old, loaded
		return loc, false
	})
	return prev, had
}

// Remove deletes the entry for key and returns the previous location, if any.
func (i *Index) Remove(key string) (Location, bool) {
	return i.m.LoadAndDelete(key)
}

// Range calls f for every entry until f returns false. Iteration order is
// unspecified and entries stored or deleted during iteration may or may
// not be observed.
func (i *Index) Range(f func(key string, loc Location) bool) {
	i.m.Range(f)
}

// Len returns the number of keys currently present.
func (i *Index) Len() int {
	return i.m.Size()
}
