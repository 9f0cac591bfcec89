// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/cinescope/internal/logging"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRateLimits(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("UPSTREAM_URL is required")
	}
	if err := validateHTTPURL(c.Upstream.URL, "UPSTREAM_URL"); err != nil {
		return fmt.Errorf("UPSTREAM_URL is invalid: %w", err)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.Upstream.BreakerEnabled {
		if c.Upstream.BreakerFailureRatio <= 0 || c.Upstream.BreakerFailureRatio > 1 {
			return fmt.Errorf("UPSTREAM_BREAKER_FAILURE_RATIO must be in (0, 1]")
		}
		if c.Upstream.BreakerMinRequests == 0 {
			return fmt.Errorf("UPSTREAM_BREAKER_MIN_REQUESTS must be at least 1")
		}
	}
	return nil
}

// validateCache checks the store naming inputs and eviction caps.
func (c *Config) validateCache() error {
	if c.Cache.Version == "" {
		return fmt.Errorf("CACHE_VERSION is required")
	}
	if c.Cache.Prefix == "" {
		return fmt.Errorf("CACHE_PREFIX is required")
	}
	// Store names are "<prefix>-<kind>-<version>"; a version containing the
	// prefix would make activation keep stores it should purge.
	if strings.Contains(c.Cache.Prefix, c.Cache.Version) {
		return fmt.Errorf("CACHE_VERSION %q must not be a substring of CACHE_PREFIX %q", c.Cache.Version, c.Cache.Prefix)
	}
	if !strings.HasPrefix(c.Cache.APIPrefix, "/") {
		return fmt.Errorf("CACHE_API_PREFIX must start with /")
	}
	if c.Cache.APIMaxEntries < 1 || c.Cache.ImageMaxEntries < 1 || c.Cache.RuntimeMaxEntries < 1 {
		return fmt.Errorf("cache max entries must be at least 1")
	}
	if c.Cache.ImageMaxAge <= 0 {
		return fmt.Errorf("CACHE_IMAGE_MAX_AGE must be positive")
	}
	if c.Cache.PrecacheConcurrency < 1 {
		return fmt.Errorf("CACHE_PRECACHE_CONCURRENCY must be at least 1")
	}
	if c.Cache.MaxEntryBytes < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRY_BYTES must be at least 1")
	}
	if c.Cache.ImageHost == "" {
		return fmt.Errorf("CACHE_IMAGE_HOST is required")
	}
	for _, u := range c.Cache.PrecacheURLs {
		if u == "" {
			return fmt.Errorf("CACHE_PRECACHE_URLS must not contain empty entries")
		}
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.SyncInterval < 0 {
		return fmt.Errorf("QUEUE_SYNC_INTERVAL must not be negative")
	}
	if c.Queue.ReplayRate <= 0 {
		return fmt.Errorf("QUEUE_REPLAY_RATE must be positive")
	}
	if c.Queue.ReplayBurst < 1 {
		return fmt.Errorf("QUEUE_REPLAY_BURST must be at least 1")
	}
	if c.Queue.ReplayTimeout <= 0 {
		return fmt.Errorf("QUEUE_REPLAY_TIMEOUT must be positive")
	}
	for _, pair := range c.Queue.CaptureRoutes {
		actionType, prefix, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(actionType) == "" || !strings.HasPrefix(strings.TrimSpace(prefix), "/") {
			return fmt.Errorf("QUEUE_CAPTURE_ROUTES entry %q must look like type=/path", pair)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && (c.Cache.Path == "" || c.Queue.Path == "") {
		return fmt.Errorf("CACHE_PATH and QUEUE_PATH are required unless BADGER_IN_MEMORY=true")
	}
	if !c.Storage.InMemory && c.Cache.Path == c.Queue.Path {
		return fmt.Errorf("CACHE_PATH and QUEUE_PATH must be different directories")
	}
	if c.Storage.GCRatio <= 0 || c.Storage.GCRatio >= 1 {
		return fmt.Errorf("BADGER_GC_RATIO must be in (0, 1)")
	}
	return nil
}

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL requires an http(s) base URL with a host and no path or query.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, parsedURL.Path)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return nil
}

// HasWildcardCORS reports whether any origin is allowed.
func (c *Config) HasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
