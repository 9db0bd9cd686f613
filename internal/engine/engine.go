// Package engine provides the key-value storage engines.
// The log-structured engine (KV) appends records to timestamped log files
// and keeps an in-memory index of record locations; the Bolt engine wraps
// an embedded B+tree database behind the same contract. Which engine owns
// a database directory is recorded in a config file so that reopening with
// a different engine fails instead of corrupting the data.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Engine names accepted by Open and recorded in the config file.
const (
	KindKVS  = "kvs"
	KindBolt = "bolt"
)

// ConfigFile is the name of the per-directory document recording which
// engine type the directory belongs to.
const ConfigFile = "config.info"

var (
	// ErrNonExistentKey is returned by Remove when the key is not present.
	ErrNonExistentKey = errors.New("key not found")
	// ErrWrongEngine is returned when the engine recorded in the database
	// directory disagrees with the requested one.
	ErrWrongEngine = errors.New("database directory belongs to a different engine")
)

// Engine defines the contract shared by all storage backends. A single
// handle is safe for concurrent use from many goroutines; request
// handlers share one handle rather than each opening the directory.
type Engine interface {
	// Set stores a key-value pair durably.
	Set(key, value string) error
	// Get returns the value for key, and whether the key exists.
	Get(key string) (string, bool, error)
	// Remove deletes a key. Returns ErrNonExistentKey if absent.
	Remove(key string) error
	// Close flushes pending state and releases resources.
	Close() error
}

type persistedChoice struct {
	Engine string `yaml:"engine"`
}

// SelectEngine resolves which engine type to use for the database
// directory. If the directory already records a choice, the requested
// engine (when non-empty) must match it or ErrWrongEngine is returned.
// Otherwise the requested engine (defaulting to kvs) is persisted and
// returned.
func SelectEngine(dir, requested string) (string, error) {
	if requested != "" && requested != KindKVS && requested != KindBolt {
		return "", fmt.Errorf("unknown engine %q", requested)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, ConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var recorded persistedChoice
		if err := yaml.Unmarshal(data, &recorded); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if requested != "" && requested != recorded.Engine {
			return "", fmt.Errorf("%w: directory records %q, requested %q",
				ErrWrongEngine, recorded.Engine, requested)
		}
		return recorded.Engine, nil

	case os.IsNotExist(err):
		choice := requested
		if choice == "" {
			choice = KindKVS
		}
		data, err := yaml.Marshal(persistedChoice{Engine: choice})
		if err != nil {
			return "", fmt.Errorf("failed to encode engine choice: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("failed to persist engine choice to %s: %w", path, err)
		}
		slog.Info("engine: persisted engine choice",
			"dir", dir,
			"engine", choice)
		return choice, nil

	default:
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
}

// Open resolves the engine type for dir per SelectEngine and opens it.
func Open(dir, requested string, opts Options) (Engine, error) {
	kind, err := SelectEngine(dir, requested)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindKVS:
		return OpenKV(dir, opts)
	case KindBolt:
		return OpenBolt(dir)
	default:
		return nil, fmt.Errorf("unknown engine %q recorded in %s", kind, dir)
	}
}
