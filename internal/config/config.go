// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

// Package config loads the edge configuration.
//
// Configuration is layered with Koanf v2 (highest priority last):
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (explicit mapping in envTransformFunc)
//
// Config is immutable after Load and safe for concurrent reads.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all edge configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Upstream   UpstreamConfig   `koanf:"upstream"`
	Cache      CacheConfig      `koanf:"cache"`
	Queue      QueueConfig      `koanf:"queue"`
	Storage    StorageConfig    `koanf:"storage"`
	Security   SecurityConfig   `koanf:"security"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig configures the listening HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig configures the CineScope+ origin and the circuit breaker in
// front of it. Requests in absolute form bypass URL and go to their own host.
type UpstreamConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	BreakerEnabled      bool          `koanf:"breaker_enabled"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerHalfOpenMax  uint32        `koanf:"breaker_half_open_max"`
}

// CacheConfig configures the named cache stores and request classification.
type CacheConfig struct {
	// Version is embedded in every store name. Changing it purges all older
	// stores on the next activation.
	Version string `koanf:"version"`

	// Prefix is the leading part of every store name ("cinescope").
	Prefix string `koanf:"prefix"`

	// Path is the Badger directory holding the cache stores.
	Path string `koanf:"path"`

	APIPrefix string `koanf:"api_prefix"`
	ImageHost string `koanf:"image_host"`

	APIMaxEntries     int           `koanf:"api_max_entries"`
	ImageMaxEntries   int           `koanf:"image_max_entries"`
	RuntimeMaxEntries int           `koanf:"runtime_max_entries"`
	ImageMaxAge       time.Duration `koanf:"image_max_age"`

	// PrecacheURLs is the install manifest written into the static store.
	PrecacheURLs []string `koanf:"precache_urls"`

	// OfflinePage is served for failed navigations with no cached match.
	OfflinePage string `koanf:"offline_page"`

	// PrecacheConcurrency bounds parallel fetches for CACHE_URLS and install.
	PrecacheConcurrency int `koanf:"precache_concurrency"`

	// MaxEntryBytes is the largest body that is buffered and cached. Larger
	// responses, and every non-200, are streamed to the client uncached.
	MaxEntryBytes int64 `koanf:"max_entry_bytes"`
}

// QueueConfig configures the offline action queue and background sync.
type QueueConfig struct {
	// Path is the Badger directory holding pending-actions and cached-data.
	Path string `koanf:"path"`

	// SyncInterval is how often every sync tag is retried in the background.
	// Zero disables the periodic loop; syncs then only run when triggered.
	SyncInterval time.Duration `koanf:"sync_interval"`

	// ReplayRate limits replays per second during a sync; ReplayBurst is the bucket size.
	ReplayRate  float64 `koanf:"replay_rate"`
	ReplayBurst int     `koanf:"replay_burst"`

	// ReplayTimeout bounds a single replayed request.
	ReplayTimeout time.Duration `koanf:"replay_timeout"`

	// CaptureFailedMutations enqueues non-GET requests whose pass-through failed
	// with a network error, when their path matches CaptureRoutes.
	CaptureFailedMutations bool `koanf:"capture_failed_mutations"`

	// CaptureRoutes maps action types to path prefixes as "type=/prefix" pairs.
	CaptureRoutes []string `koanf:"capture_routes"`
}

// CaptureRouteMap parses CaptureRoutes into prefix -> action type.
// Malformed pairs are skipped; Validate reports them.
func (q QueueConfig) CaptureRouteMap() map[string]string {
	routes := make(map[string]string, len(q.CaptureRoutes))
	for _, pair := range q.CaptureRoutes {
		actionType, prefix, ok := strings.Cut(pair, "=")
		if !ok || actionType == "" || prefix == "" {
			continue
		}
		routes[strings.TrimSpace(prefix)] = strings.TrimSpace(actionType)
	}
	return routes
}

// StorageConfig holds the Badger tuning shared by both databases.
type StorageConfig struct {
	SyncWrites       bool          `koanf:"sync_writes"`
	InMemory         bool          `koanf:"in_memory"`
	MemTableSize     int64         `koanf:"memtable_size"`
	ValueLogFileSize int64         `koanf:"vlog_file_size"`
	NumCompactors    int           `koanf:"num_compactors"`
	Compression      bool          `koanf:"compression"`
	GCInterval       time.Duration `koanf:"gc_interval"`
	GCRatio          float64       `koanf:"gc_ratio"`
}

// SecurityConfig configures CORS and rate limiting on the control endpoints.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsDevelopment reports whether the edge runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "" || c.Server.Environment == "development"
}

// Load loads configuration from defaults, config file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
