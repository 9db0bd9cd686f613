// Package main provides the entry point for the key-value server.
// It initializes the logger, loads configuration, opens the storage
// engine recorded for the database directory, and serves the TCP
// protocol on a worker pool.
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/jassi-singh/ember-kv/internal/config"
	"github.com/jassi-singh/ember-kv/internal/engine"
	"github.com/jassi-singh/ember-kv/internal/pool"
	"github.com/jassi-singh/ember-kv/internal/server"
)

const version = "0.1.0"

func main() {
	addr := flag.String("addr", "", "listen address (HOST:PORT)")
	engineName := flag.String("engine", "", "storage engine: kvs or bolt")
	dir := flag.String("dir", "", "database directory")
	poolKind := flag.String("pool", "", "worker pool: shared, naive or group")
	poolSize := flag.Int("pool-size", 0, "number of pool workers")
	verbose := flag.BoolP("verbose", "v", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *engineName != "" {
		cfg.Engine = *engineName
	}
	if *dir != "" {
		cfg.DataDir = *dir
	}
	if *poolKind != "" {
		cfg.Pool = *poolKind
	}
	if *poolSize > 0 {
		cfg.PoolSize = *poolSize
	}

	level := cfg.Level()
	if *verbose {
		level = slog.LevelDebug
	}
	slogHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(slogHandler))

	slog.Info("main: starting kvs-server",
		"version", version,
		"addr", cfg.Addr,
		"engine", cfg.Engine,
		"data_dir", cfg.DataDir,
		"pool", cfg.Pool,
		"pool_size", cfg.PoolSize,
	)

	eng, err := engine.Open(cfg.DataDir, cfg.Engine, engine.Options{CompactBytes: cfg.CompactBytes})
	if err != nil {
		slog.Error("main: failed to open engine",
			"error", err)
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("main: error closing engine",
				"error", err)
		}
	}()

	p, err := pool.New(cfg.Pool, cfg.PoolSize)
	if err != nil {
		slog.Error("main: failed to build worker pool",
			"error", err)
		log.Fatalf("Failed to build worker pool: %v", err)
	}

	srv := server.New(eng, p)
	if err := srv.Listen(cfg.Addr); err != nil {
		slog.Error("main: failed to bind",
			"addr", cfg.Addr,
			"error", err)
		log.Fatalf("Failed to bind %s: %v", cfg.Addr, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("main: shutdown requested",
			"signal", sig.String())
		if err := srv.Close(); err != nil {
			slog.Error("main: error during shutdown",
				"error", err)
		}
	}()

	if err := srv.Serve(); err != nil {
		slog.Error("main: server error",
			"error", err)
		log.Fatalf("Server error: %v", err)
	}
}
