// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
// The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cinescope/config.yaml",
	"/etc/cinescope/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. The cache caps, image expiry
// and precache manifest are the values the CineScope+ client was shipped with.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Upstream: UpstreamConfig{
			URL:                 "http://127.0.0.1:3000",
			Timeout:             10 * time.Second,
			BreakerEnabled:      true,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      30 * time.Second,
			BreakerHalfOpenMax:  3,
		},
		Cache: CacheConfig{
			Version:             "v1",
			Prefix:              "cinescope",
			Path:                "/data/cache",
			APIPrefix:           "/api/",
			ImageHost:           "image.tmdb.org",
			APIMaxEntries:       30,
			ImageMaxEntries:     50,
			RuntimeMaxEntries:   100,
			ImageMaxAge:         7 * 24 * time.Hour,
			PrecacheURLs:        []string{"/", "/offline.html"},
			OfflinePage:         "/offline.html",
			PrecacheConcurrency: 4,
			MaxEntryBytes:       8 << 20,
		},
		Queue: QueueConfig{
			Path:                   "/data/queue",
			SyncInterval:           5 * time.Minute,
			ReplayRate:             10,
			ReplayBurst:            5,
			ReplayTimeout:          15 * time.Second,
			CaptureFailedMutations: false,
			CaptureRoutes: []string{
				"rating=/api/ratings",
				"watchlist=/api/watchlist",
				"review=/api/reviews",
			},
		},
		Storage: StorageConfig{
			SyncWrites:       true,
			InMemory:         false,
			MemTableSize:     16 << 20,
			ValueLogFileSize: 64 << 20,
			NumCompactors:    2,
			Compression:      true,
			GCInterval:       10 * time.Minute,
			GCRatio:          0.5,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables
//
// Precedence is ENV > File > Defaults. The result is validated before return.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// UPSTREAM_URL -> upstream.url, CACHE_VERSION -> cache.version
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns CONFIG_PATH if it exists, else the first existing
// entry of DefaultConfigPaths, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they arrive as strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"cache.precache_urls",
	"queue.capture_routes",
}

// processSliceFields splits comma-separated env values into slices.
// Values that are already slices (from YAML) are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":        "server.host",
	"http_port":        "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"idle_timeout":     "server.idle_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Upstream
	"upstream_url":                   "upstream.url",
	"upstream_timeout":               "upstream.timeout",
	"upstream_breaker_enabled":       "upstream.breaker_enabled",
	"upstream_breaker_min_requests":  "upstream.breaker_min_requests",
	"upstream_breaker_failure_ratio": "upstream.breaker_failure_ratio",
	"upstream_breaker_interval":      "upstream.breaker_interval",
	"upstream_breaker_timeout":       "upstream.breaker_timeout",
	"upstream_breaker_half_open_max": "upstream.breaker_half_open_max",

	// Cache
	"cache_version":              "cache.version",
	"cache_prefix":               "cache.prefix",
	"cache_path":                 "cache.path",
	"cache_api_prefix":           "cache.api_prefix",
	"cache_image_host":           "cache.image_host",
	"cache_api_max_entries":      "cache.api_max_entries",
	"cache_image_max_entries":    "cache.image_max_entries",
	"cache_runtime_max_entries":  "cache.runtime_max_entries",
	"cache_image_max_age":        "cache.image_max_age",
	"cache_precache_urls":        "cache.precache_urls",
	"cache_offline_page":         "cache.offline_page",
	"cache_precache_concurrency": "cache.precache_concurrency",
	"cache_max_entry_bytes":      "cache.max_entry_bytes",

	// Queue
	"queue_path":                     "queue.path",
	"queue_sync_interval":            "queue.sync_interval",
	"queue_replay_rate":              "queue.replay_rate",
	"queue_replay_burst":             "queue.replay_burst",
	"queue_replay_timeout":           "queue.replay_timeout",
	"queue_capture_failed_mutations": "queue.capture_failed_mutations",
	"queue_capture_routes":           "queue.capture_routes",

	// Storage
	"badger_sync_writes":    "storage.sync_writes",
	"badger_in_memory":      "storage.in_memory",
	"badger_memtable_size":  "storage.memtable_size",
	"badger_vlog_file_size": "storage.vlog_file_size",
	"badger_num_compactors": "storage.num_compactors",
	"badger_compression":    "storage.compression",
	"badger_gc_interval":    "storage.gc_interval",
	"badger_gc_ratio":       "storage.gc_ratio",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" so unrelated environment does not leak into config.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - UPSTREAM_URL -> upstream.url
//   - CACHE_VERSION -> cache.version
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
