// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package offline

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/cinescope/internal/logging"
)

// Drainer is what SyncLoop runs on every tick. *Syncer and the worker both
// satisfy it.
type Drainer interface {
	SyncAll(ctx context.Context) ([]SyncResult, error)
}

// SyncLoop retries pending actions on an interval, standing in for the
// platform's retry of registered syncs.
type SyncLoop struct {
	drainer  Drainer
	interval time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	stopping bool
	stopDone chan struct{}
	lastRun  time.Time
}

// NewSyncLoop creates a loop. A zero interval disables periodic drains; the
// loop still runs so supervision treats it like any other service.
func NewSyncLoop(d Drainer, interval time.Duration) *SyncLoop {
	return &SyncLoop{drainer: d, interval: interval}
}

// Name identifies the loop in supervisor logs.
func (l *SyncLoop) Name() string { return "offline-sync" }

// Start begins the loop. Starting a running loop is a no-op.
func (l *SyncLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	for l.stopping {
		stopDone := l.stopDone
		l.mu.Unlock()
		<-stopDone
		l.mu.Lock()
	}
	if l.running {
		l.mu.Unlock()
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.stopDone = make(chan struct{})
	done := l.stopDone
	l.mu.Unlock()

	go l.run(loopCtx, done)

	logging.Info().Dur("interval", l.interval).Msg("Offline sync loop started")
	return nil
}

// Stop cancels the loop and waits for an in-flight drain to return.
func (l *SyncLoop) Stop() {
	l.mu.Lock()
	if !l.running || l.stopping {
		l.mu.Unlock()
		return
	}
	l.cancel()
	l.running = false
	l.stopping = true
	stopDone := l.stopDone
	l.mu.Unlock()

	<-stopDone

	l.mu.Lock()
	l.stopping = false
	l.mu.Unlock()

	logging.Info().Msg("Offline sync loop stopped")
}

// IsRunning reports whether the loop is active.
func (l *SyncLoop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// LastRun returns when the last drain finished.
func (l *SyncLoop) LastRun() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRun
}

func (l *SyncLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if l.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce drains every tag immediately.
func (l *SyncLoop) RunOnce(ctx context.Context) {
	if _, err := l.drainer.SyncAll(ctx); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Msg("Periodic sync finished with errors")
	}
	l.mu.Lock()
	l.lastRun = time.Now()
	l.mu.Unlock()
}
