package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

const boltFileName = "bolt.db"

var boltBucket = []byte("kv")

// Bolt is the alternate engine backed by an embedded B+tree database.
// Every write is committed (and therefore flushed) before returning, and
// Remove on a missing key reports ErrNonExistentKey, matching the
// log-structured engine's contract.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens the embedded database under dir, creating it if needed.
func OpenBolt(dir string) (*Bolt, error) {
	path := filepath.Join(dir, boltFileName)
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bolt bucket: %w", err)
	}

	slog.Info("engine: opened bolt engine",
		"path", path)
	return &Bolt{db: db}, nil
}

// Set stores a key-value pair. The transaction commit syncs to disk.
func (e *Bolt) Set(key, value string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key, and whether the key exists.
func (e *Bolt) Get(key string) (string, bool, error) {
	var value string
	var found bool
	err := e.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(boltBucket).Get([]byte(key)); data != nil {
			value = string(data)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, found, nil
}

// Remove deletes a key. Returns ErrNonExistentKey when absent.
func (e *Bolt) Remove(key string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket.Get([]byte(key)) == nil {
			return ErrNonExistentKey
		}
		return bucket.Delete([]byte(key))
	})
	if err == ErrNonExistentKey {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// Close releases the database file.
func (e *Bolt) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("failed to close bolt database: %w", err)
	}
	return nil
}
