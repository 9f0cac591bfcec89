// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package strategy

import (
	"context"
	"net/http"
)

// NetworkFirst prefers a fresh network response, then the store, then the
// offline document (navigations) or a synthesized 503.
type NetworkFirst struct {
	Deps  *Deps
	Store string
	Max   int
}

// Name implements Strategy.
func (s *NetworkFirst) Name() string { return NameNetworkFirst }

// Handle implements Strategy.
func (s *NetworkFirst) Handle(ctx context.Context, req Request) (Result, error) {
	d := s.Deps
	res, err := d.fetchNetwork(ctx, s.Name(), s.Store, req)
	if err == nil {
		if res.cacheable() && d.store(ctx, s.Name(), s.Store, res.Snapshot) {
			d.evictLater(ctx, s.Store, s.Max)
		}
		return record(s.Name(), res), nil
	}

	d.logger(ctx, s.Name()).Debug().Err(err).Str("key", req.Key).Msg("network failed, trying cache")

	if cached, ok := d.lookup(ctx, s.Name(), s.Store, req.Key); ok {
		return record(s.Name(), Result{Snapshot: cached, Source: SourceCache}), nil
	}

	if req.Navigate {
		if page := d.offline(ctx, s.Name()); page != nil {
			return record(s.Name(), Result{Snapshot: page, Source: SourceOffline}), nil
		}
	}

	synth := synthesize(req, http.StatusServiceUnavailable, ServiceUnavailableText, d)
	return record(s.Name(), Result{Snapshot: synth, Source: SourceSynthesized}), nil
}
