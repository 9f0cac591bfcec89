// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/cinescope/internal/logging"
)

// Background runs fire-and-forget work (eviction, revalidation) detached from
// the request that triggered it. Wait blocks until all of it has finished.
type Background struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewBackground creates a tracker. Each task gets at most timeout to finish.
func NewBackground(timeout time.Duration) *Background {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Background{timeout: timeout}
}

// Go runs fn on its own goroutine. The context keeps ctx's values (request
// and correlation IDs) but not its cancellation.
func (b *Background) Go(ctx context.Context, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Ctx(ctx).Error().Interface("panic", r).Msg("background task panicked")
			}
		}()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()
		fn(bctx)
	}()
}

// Wait blocks until every task started so far has returned.
func (b *Background) Wait() {
	b.wg.Wait()
}
