// Package config provides configuration management for the key-value
// server. It loads settings from a YAML file and environment variables;
// command-line flags override whatever is loaded here.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath is where LoadConfig looks for the config file.
const DefaultPath = "config.yml"

// Config holds all server configuration values.
type Config struct {
	DataDir      string `yaml:"data_dir"`      // Directory where the database lives
	Addr         string `yaml:"addr"`          // TCP listen address
	Engine       string `yaml:"engine"`        // Engine name: kvs or bolt; empty defers to the directory's recorded choice
	Pool         string `yaml:"pool"`          // Worker pool kind: shared, naive or group
	PoolSize     int    `yaml:"pool_size"`     // Number of pool workers
	CompactBytes int64  `yaml:"compact_bytes"` // Uncompacted-byte threshold triggering compaction
	LogLevel     string `yaml:"log_level"`     // slog level: debug, info, warn or error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:  "./db",
		Addr:     "127.0.0.1:4000",
		Pool:     "shared",
		PoolSize: 8,
		LogLevel: "info",
	}
}

var (
	appConfig *Config
	once      sync.Once
	initErr   error
)

// LoadConfig reads configuration from DefaultPath and optionally from a
// .env file. It uses a sync.Once so configuration is loaded only once,
// even with concurrent calls. Environment variables in the YAML file are
// expanded using os.ExpandEnv. A missing config file is not an error;
// defaults apply.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		appConfig, initErr = Load(DefaultPath)
	})
	return appConfig, initErr
}

// Load reads and parses the config file at path on top of the defaults.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (optional - no error if missing)
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found or error loading it", "error", err)
	} else {
		slog.Debug(".env file loaded successfully")
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("config: no config file, using defaults",
			"path", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Level maps the configured log level to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
