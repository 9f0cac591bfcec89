// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/cinescope/internal/logging"
)

// GCLoop periodically runs value log GC on one database.
type GCLoop struct {
	db       *DB
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewGCLoop creates a GC loop for db. A non-positive interval defaults to ten minutes.
func NewGCLoop(db *DB, interval time.Duration) *GCLoop {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCLoop{db: db, interval: interval}
}

// Name identifies the loop in supervisor logs.
func (g *GCLoop) Name() string {
	return "badger-gc-" + g.db.Name()
}

// Start begins the background loop. Starting a running loop is a no-op.
func (g *GCLoop) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.running = true
	g.mu.Unlock()

	g.wg.Add(1)
	go g.run()

	logging.Debug().Str("db", g.db.Name()).Dur("interval", g.interval).Msg("Badger GC loop started")
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (g *GCLoop) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.cancel()
	g.running = false
	g.mu.Unlock()

	g.wg.Wait()
}

// IsRunning reports whether the loop is active.
func (g *GCLoop) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// LastRun returns when GC last completed, or the zero time.
func (g *GCLoop) LastRun() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRun
}

func (g *GCLoop) run() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.RunOnce()
		}
	}
}

// RunOnce runs a single GC pass and logs the outcome.
func (g *GCLoop) RunOnce() {
	start := time.Now()
	rewritten, err := g.db.RunGC()
	if err != nil {
		logging.Error().Err(err).Str("db", g.db.Name()).Msg("Badger GC failed")
		return
	}

	g.mu.Lock()
	g.lastRun = time.Now()
	g.mu.Unlock()

	if rewritten > 0 {
		logging.Info().
			Str("db", g.db.Name()).
			Int("files_rewritten", rewritten).
			Dur("duration", time.Since(start)).
			Msg("Badger GC reclaimed value log space")
	}
}
