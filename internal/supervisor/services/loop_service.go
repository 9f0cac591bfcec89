// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package services

import (
	"context"
	"fmt"
)

// Loop is a background loop with a Start/Stop lifecycle. Satisfied by
// *offline.SyncLoop and *storage.GCLoop.
type Loop interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// LoopService adapts a Loop to suture: Start, wait for cancellation, Stop.
type LoopService struct {
	loop Loop
}

// NewLoopService wraps loop.
//
//	tree.AddEdgeService(services.NewLoopService(offline.NewSyncLoop(w, interval)))
//	tree.AddStorageService(services.NewLoopService(storage.NewGCLoop(db, interval)))
func NewLoopService(loop Loop) *LoopService {
	return &LoopService{loop: loop}
}

// Serve implements suture.Service. A failed Start is returned so suture
// retries it under its backoff policy.
func (s *LoopService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.loop.Name(), err)
	}

	<-ctx.Done()

	// Stop waits for the loop goroutine.
	s.loop.Stop()
	return ctx.Err()
}

// String returns the loop's name.
func (s *LoopService) String() string {
	return s.loop.Name()
}
