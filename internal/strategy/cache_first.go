// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/metrics"
)

// CacheFirst serves a cached match younger than MaxAge without touching the
// network. Older or missing entries are refetched; when the network fails an
// expired entry is still served. Expired entries are never deleted here.
type CacheFirst struct {
	Deps   *Deps
	Store  string
	Max    int
	MaxAge time.Duration
}

// Name implements Strategy.
func (s *CacheFirst) Name() string { return NameCacheFirst }

// Handle implements Strategy.
func (s *CacheFirst) Handle(ctx context.Context, req Request) (Result, error) {
	d := s.Deps
	cached, ok := d.lookup(ctx, s.Name(), s.Store, req.Key)
	if ok {
		if cached.Age(d.now()) < s.MaxAge {
			return record(s.Name(), Result{Snapshot: cached, Source: SourceCache}), nil
		}
		metrics.RecordCacheLookup(s.Store, "expired")
	}

	res, err := d.fetchNetwork(ctx, s.Name(), s.Store, req)
	if err == nil {
		if res.cacheable() && d.store(ctx, s.Name(), s.Store, res.Snapshot) {
			d.evictLater(ctx, s.Store, s.Max)
		}
		return record(s.Name(), res), nil
	}

	if ok {
		d.logger(ctx, s.Name()).Debug().Err(err).Str("key", req.Key).Msg("network failed, serving expired entry")
		return record(s.Name(), Result{Snapshot: cached, Source: SourceCache}), nil
	}

	synth := synthesize(req, http.StatusNotFound, ImageUnavailableText, d)
	return record(s.Name(), Result{Snapshot: synth, Source: SourceSynthesized}), nil
}

func synthesize(req Request, status int, text string, d *Deps) *cachestore.Snapshot {
	return cachestore.Synthesize(req.HTTP.Method, req.HTTP.URL.String(), status, text, d.now())
}
