// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

// Package strategy implements the three caching strategies that decide, per
// request, the order in which the network and a cache store are consulted.
//
// Strategies never fail because of the store: lookup and write errors are
// logged and treated as a miss or a skipped write. Only stale-while-revalidate
// can end without a response, when it has no cached match and the network
// fails too.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/fetch"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
)

// ErrNoResponse is returned when a strategy has nothing to answer with.
var ErrNoResponse = errors.New("no response available")

// Strategy names, used in logs and metrics.
const (
	NameNetworkFirst         = "network-first"
	NameCacheFirst           = "cache-first"
	NameStaleWhileRevalidate = "stale-while-revalidate"
)

// Source says where a response came from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceOffline     Source = "offline"
	SourceSynthesized Source = "synthesized"
)

// Synthesized response bodies.
const (
	ServiceUnavailableText = "Service Unavailable"
	ImageUnavailableText   = "Image unavailable"
)

// Request is one intercepted GET.
type Request struct {
	// HTTP is forwarded to the fetcher unchanged.
	HTTP *http.Request

	// Key is the cache descriptor, see cachestore.DescriptorKey.
	Key string

	// Navigate marks a page navigation; only navigations get the offline document.
	Navigate bool
}

// NewRequest builds a Request keyed on r's method and URL.
func NewRequest(r *http.Request, navigate bool) Request {
	return Request{
		HTTP:     r,
		Key:      cachestore.DescriptorKey(r.Method, r.URL.String()),
		Navigate: navigate,
	}
}

// Result is a strategy's answer: either a buffered Snapshot or a Live network
// response that was not cacheable and is streamed as is. Whoever consumes a
// Result owns the Live body.
type Result struct {
	Snapshot *cachestore.Snapshot
	Live     *http.Response
	Source   Source
}

// Response returns the answer as an *http.Response for req.
func (r Result) Response(req *http.Request) *http.Response {
	if r.Live != nil {
		return r.Live
	}
	return r.Snapshot.Response(req)
}

// Status returns the HTTP status of the answer.
func (r Result) Status() int {
	if r.Live != nil {
		return r.Live.StatusCode
	}
	if r.Snapshot != nil {
		return r.Snapshot.Status
	}
	return 0
}

// cacheable reports whether r is a buffered 200.
func (r Result) cacheable() bool {
	return r.Snapshot != nil && r.Snapshot.Status == http.StatusOK
}

// discard releases a Live body nobody will read.
func (r Result) discard() {
	if r.Live != nil {
		_ = r.Live.Body.Close()
	}
}

// Strategy handles one request class.
type Strategy interface {
	Name() string
	Handle(ctx context.Context, req Request) (Result, error)
}

// Deps are shared by all strategies.
type Deps struct {
	Manager *cachestore.Manager
	Fetcher fetch.Fetcher
	Sink    cachestore.EvictionSink
	Tasks   *Background

	// OfflineKey is the descriptor of the offline fallback document.
	OfflineKey string

	// MaxEntryBytes caps a cacheable body; larger responses are streamed
	// and never stored. Zero means cachestore.DefaultMaxEntryBytes.
	MaxEntryBytes int64

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) logger(ctx context.Context, strategy string) *zerolog.Logger {
	l := logging.Ctx(ctx).With().Str("strategy", strategy).Logger()
	return &l
}

// fetchNetwork performs the network fetch. A 200 within MaxEntryBytes is
// buffered into a Snapshot; any other status, or a larger body, comes back
// Live and is never stored. Every failure, including a truncated body, is
// reported as fetch.ErrNetwork.
func (d *Deps) fetchNetwork(ctx context.Context, strategy, store string, req Request) (Result, error) {
	resp, err := d.Fetcher.Fetch(ctx, req.HTTP)
	if err != nil {
		if !errors.Is(err, fetch.ErrNetwork) {
			err = fmt.Errorf("%w: %v", fetch.ErrNetwork, err)
		}
		return Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Result{Live: resp, Source: SourceNetwork}, nil
	}

	snap, err := cachestore.FromResponse(req.HTTP.Method, req.HTTP.URL.String(), resp, d.now(), d.MaxEntryBytes)
	switch {
	case errors.Is(err, cachestore.ErrTooLarge):
		d.logger(ctx, strategy).Debug().Str("key", req.Key).Int64("content_length", resp.ContentLength).Msg("response too large to cache, streaming")
		metrics.RecordCacheSkip(store, "too_large")
		return Result{Live: resp, Source: SourceNetwork}, nil
	case err != nil:
		return Result{}, fmt.Errorf("%w: read body: %v", fetch.ErrNetwork, err)
	}
	return Result{Snapshot: snap, Source: SourceNetwork}, nil
}

// lookup returns the cached match in store, treating store errors as a miss.
func (d *Deps) lookup(ctx context.Context, strategy, store, key string) (*cachestore.Snapshot, bool) {
	s, err := d.Manager.Open(ctx, store)
	if err != nil {
		d.logger(ctx, strategy).Warn().Err(err).Str("store", store).Msg("cache store open failed")
		return nil, false
	}
	snap, ok, err := s.Match(ctx, key)
	if err != nil {
		d.logger(ctx, strategy).Warn().Err(err).Str("store", store).Str("key", key).Msg("cache lookup failed")
		return nil, false
	}
	return snap, ok
}

// store writes a clone of snap into the named store. Failures are logged.
func (d *Deps) store(ctx context.Context, strategy, store string, snap *cachestore.Snapshot) bool {
	s, err := d.Manager.Open(ctx, store)
	if err == nil {
		err = s.Put(ctx, snap.Clone())
	}
	if err != nil {
		d.logger(ctx, strategy).Warn().Err(err).Str("store", store).Str("url", snap.URL).Msg("cache write failed")
		return false
	}
	return true
}

// evictLater trims store to max in the background and reports to the sink.
func (d *Deps) evictLater(ctx context.Context, store string, max int) {
	d.Tasks.Go(ctx, func(ctx context.Context) {
		result, err := d.Manager.Evict(ctx, store, max)
		if d.Sink != nil {
			d.Sink.EvictionDone(ctx, result, err)
		}
	})
}

// offline answers a failed navigation with the offline document from any
// store, or nil if it was never cached.
func (d *Deps) offline(ctx context.Context, strategy string) *cachestore.Snapshot {
	if d.OfflineKey == "" {
		return nil
	}
	snap, ok, err := d.Manager.MatchAny(ctx, d.OfflineKey)
	if err != nil {
		d.logger(ctx, strategy).Warn().Err(err).Msg("offline document lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return snap
}

func record(strategy string, res Result) Result {
	metrics.RecordStrategyResponse(strategy, string(res.Source))
	return res
}
