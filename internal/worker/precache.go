// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/logging"
)

// precache fetches every URL and stores the responses in store. It is all or
// nothing: if any fetch fails or answers non-200, nothing is written.
func (w *Worker) precache(ctx context.Context, store *cachestore.Store, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	limit := w.cfg.PrecacheConcurrency
	if limit < 1 {
		limit = 1
	}
	snaps := make([]*cachestore.Snapshot, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			snap, err := w.fetchForPrecache(gctx, u)
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, snap := range snaps {
		if err := store.Put(ctx, snap); err != nil {
			return fmt.Errorf("store %s: %w", snap.URL, err)
		}
	}
	logging.Info().Str("store", store.Name()).Int("urls", len(urls)).Msg("Precache complete")
	return nil
}

func (w *Worker) fetchForPrecache(ctx context.Context, u string) (*cachestore.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("precache %s: %w", u, err)
	}
	resp, err := w.deps.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("precache %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("precache %s: origin answered %d", u, resp.StatusCode)
	}
	snap, err := cachestore.FromResponse(http.MethodGet, u, resp, time.Now(), w.cfg.MaxEntryBytes)
	if errors.Is(err, cachestore.ErrTooLarge) {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("precache %s: read body: %w", u, err)
	}
	return snap, nil
}
