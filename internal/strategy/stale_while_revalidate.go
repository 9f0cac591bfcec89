// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package strategy

import (
	"context"

	"github.com/tomtom215/cinescope/internal/metrics"
)

// StaleWhileRevalidate answers from the store immediately and refreshes the
// entry in the background. Writes here are not followed by eviction: the
// store is meant for a small set of content-hashed build assets.
type StaleWhileRevalidate struct {
	Deps  *Deps
	Store string
}

// Name implements Strategy.
func (s *StaleWhileRevalidate) Name() string { return NameStaleWhileRevalidate }

// Handle implements Strategy.
func (s *StaleWhileRevalidate) Handle(ctx context.Context, req Request) (Result, error) {
	d := s.Deps
	cached, ok := d.lookup(ctx, s.Name(), s.Store, req.Key)
	if ok {
		d.Tasks.Go(ctx, func(ctx context.Context) {
			res, err := s.revalidate(ctx, req)
			if err != nil {
				metrics.RevalidationsTotal.WithLabelValues("failed").Inc()
				d.logger(ctx, s.Name()).Debug().Err(err).Str("key", req.Key).Msg("revalidation failed")
				return
			}
			res.discard()
			metrics.RevalidationsTotal.WithLabelValues("ok").Inc()
		})
		return record(s.Name(), Result{Snapshot: cached, Source: SourceCache}), nil
	}

	res, err := s.revalidate(ctx, req)
	if err != nil {
		metrics.RecordStrategyResponse(s.Name(), "none")
		d.logger(ctx, s.Name()).Debug().Err(err).Str("key", req.Key).Msg("no cached match and network failed")
		return Result{}, ErrNoResponse
	}
	return record(s.Name(), res), nil
}

// revalidate fetches req and stores a cacheable 200 response.
func (s *StaleWhileRevalidate) revalidate(ctx context.Context, req Request) (Result, error) {
	d := s.Deps
	res, err := d.fetchNetwork(ctx, s.Name(), s.Store, req)
	if err != nil {
		return Result{}, err
	}
	if res.cacheable() && d.store(ctx, s.Name(), s.Store, res.Snapshot) {
		s.reportSize(ctx)
	}
	return res, nil
}

// reportSize publishes the store size so unbounded growth is visible.
func (s *StaleWhileRevalidate) reportSize(ctx context.Context) {
	st, err := s.Deps.Manager.Open(ctx, s.Store)
	if err != nil {
		return
	}
	if n, err := st.Len(ctx); err == nil {
		metrics.CacheEntries.WithLabelValues(s.Store).Set(float64(n))
	}
}
