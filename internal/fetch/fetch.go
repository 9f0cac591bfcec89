// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

// Package fetch is the edge's network capability: it sends requests to the
// CineScope+ origin (or to the absolute URL a request names, when its host is
// allowed) and reports lost connectivity as ErrNetwork.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
)

// ErrNetwork marks a fetch that produced no response at all: connection
// failure, timeout, cancelled request or an open circuit breaker.
var ErrNetwork = errors.New("network error")

// Fetcher performs one HTTP exchange.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, req *http.Request) (*http.Response, error)

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher sends requests with net/http.
type HTTPFetcher struct {
	client *http.Client
	base   *url.URL
	hosts  HostPolicy
}

// NewHTTPFetcher creates a fetcher for the configured origin. Absolute-form
// requests are only sent to the origin's host or one of extraHosts.
func NewHTTPFetcher(cfg config.UpstreamConfig, extraHosts ...string) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	hosts, err := NewHostPolicy(cfg.URL, extraHosts...)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			// Redirects are returned to the page unchanged, as a browser fetch would see them.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base:  base,
		hosts: hosts,
	}, nil
}

// Hosts returns the policy deciding which absolute URLs are fetched.
func (f *HTTPFetcher) Hosts() HostPolicy { return f.hosts }

// Resolve returns the absolute URL req should be sent to. Absolute-form
// requests keep their own host; origin-form requests go to the origin.
func (f *HTTPFetcher) Resolve(u *url.URL) *url.URL {
	if u.IsAbs() {
		return u
	}
	return f.base.ResolveReference(&url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery})
}

// Fetch implements Fetcher. Requests for hosts outside the policy fail with
// ErrHostNotAllowed before anything is sent.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := f.hosts.Check(req.URL); err != nil {
		return nil, err
	}
	out := req.Clone(ctx)
	out.URL = f.Resolve(req.URL)
	out.Host = ""
	out.RequestURI = ""
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	// Let the transport negotiate compression so stored bodies are always identity-encoded.
	out.Header.Del("Accept-Encoding")

	start := time.Now()
	resp, err := f.client.Do(out)
	metrics.RecordUpstream(req.Method, time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("url", out.URL.String()).Msg("upstream fetch failed")
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, out.URL.Redacted(), err)
	}
	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}
