// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

// Package storage opens the BadgerDB databases behind the cache stores and
// the offline queue, and runs their value log garbage collection.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("storage: database closed")

// DB is a named BadgerDB handle shared by the packages that keep state in it.
type DB struct {
	name  string
	db    *badger.DB
	ratio float64

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database at path. When cfg.InMemory is set
// the path is ignored and nothing touches disk.
func Open(name, path string, cfg config.StorageConfig) (*DB, error) {
	opts := badger.DefaultOptions(path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
		opts.BlockCacheSize = 8 << 20
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	// Badger refuses a single compactor.
	if cfg.NumCompactors >= 2 {
		opts.NumCompactors = cfg.NumCompactors
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	} else {
		opts.Compression = options.None
	}
	opts.Logger = newBadgerLogger(name)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", name, err)
	}

	ratio := cfg.GCRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	logging.Info().
		Str("db", name).
		Str("path", path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Badger database opened")

	return &DB{name: name, db: db, ratio: ratio}, nil
}

// OpenInMemory opens a small in-memory database. Used by tests across packages.
func OpenInMemory(name string) (*DB, error) {
	return Open(name, "", config.StorageConfig{
		InMemory:     true,
		MemTableSize: 4 << 20,
		GCRatio:      0.5,
	})
}

// Name returns the database name used in logs and metrics.
func (d *DB) Name() string { return d.name }

// Badger returns the underlying handle, or ErrClosed.
func (d *DB) Badger() (*badger.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.db, nil
}

// RunGC rewrites value log files until Badger reports nothing left to do.
// It returns how many files were rewritten.
func (d *DB) RunGC() (int, error) {
	db, err := d.Badger()
	if err != nil {
		return 0, err
	}

	rewritten := 0
	for {
		err := db.RunValueLogGC(d.ratio)
		switch {
		case err == nil:
			rewritten++
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			result := "noop"
			if rewritten > 0 {
				result = "rewritten"
			}
			metrics.BadgerGCRuns.WithLabelValues(d.name, result).Inc()
			return rewritten, nil
		default:
			metrics.BadgerGCRuns.WithLabelValues(d.name, "error").Inc()
			return rewritten, fmt.Errorf("run value log GC on %s: %w", d.name, err)
		}
	}
}

// Close closes the database. Further calls are no-ops.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close badger %s: %w", d.name, err)
	}
	logging.Info().Str("db", d.name).Msg("Badger database closed")
	return nil
}

// badgerLogger routes Badger's printf logging into zerolog. Info output is
// demoted to debug; Badger is chatty on open and compaction.
type badgerLogger struct {
	log zerolog.Logger
}

func newBadgerLogger(name string) *badgerLogger {
	return &badgerLogger{log: logging.WithComponent("badger").With().Str("db", name).Logger()}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
