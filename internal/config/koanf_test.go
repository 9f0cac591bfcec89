// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
)

// TestDefaultConfig verifies the shipped cache caps and manifest.
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Cache.APIMaxEntries != 30 {
		t.Errorf("Cache.APIMaxEntries = %d, want 30", cfg.Cache.APIMaxEntries)
	}
	if cfg.Cache.ImageMaxEntries != 50 {
		t.Errorf("Cache.ImageMaxEntries = %d, want 50", cfg.Cache.ImageMaxEntries)
	}
	if cfg.Cache.RuntimeMaxEntries != 100 {
		t.Errorf("Cache.RuntimeMaxEntries = %d, want 100", cfg.Cache.RuntimeMaxEntries)
	}
	if cfg.Cache.ImageMaxAge != 7*24*time.Hour {
		t.Errorf("Cache.ImageMaxAge = %v, want 168h", cfg.Cache.ImageMaxAge)
	}
	if want := []string{"/", "/offline.html"}; !reflect.DeepEqual(cfg.Cache.PrecacheURLs, want) {
		t.Errorf("Cache.PrecacheURLs = %v, want %v", cfg.Cache.PrecacheURLs, want)
	}
	if cfg.Cache.APIPrefix != "/api/" {
		t.Errorf("Cache.APIPrefix = %q, want /api/", cfg.Cache.APIPrefix)
	}
	if cfg.Cache.ImageHost != "image.tmdb.org" {
		t.Errorf("Cache.ImageHost = %q, want image.tmdb.org", cfg.Cache.ImageHost)
	}
	if cfg.Cache.MaxEntryBytes != 8<<20 {
		t.Errorf("Cache.MaxEntryBytes = %d, want 8 MiB", cfg.Cache.MaxEntryBytes)
	}
	if cfg.Queue.CaptureFailedMutations {
		t.Error("Queue.CaptureFailedMutations should be off by default")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"UPSTREAM_URL", "upstream.url"},
		{"CACHE_VERSION", "cache.version"},
		{"cache_api_max_entries", "cache.api_max_entries"},
		{"QUEUE_CAPTURE_FAILED_MUTATIONS", "queue.capture_failed_mutations"},
		{"CACHE_MAX_ENTRY_BYTES", "cache.max_entry_bytes"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestProcessSliceFields(t *testing.T) {
	k := koanf.New(".")
	_ = k.Set("security.cors_origins", "https://a.example, https://b.example,,")
	_ = k.Set("cache.precache_urls", []string{"/", "/offline.html"})

	if err := processSliceFields(k); err != nil {
		t.Fatalf("processSliceFields: %v", err)
	}

	if got := k.Strings("security.cors_origins"); !reflect.DeepEqual(got, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("cors_origins = %v", got)
	}
	if got := k.Strings("cache.precache_urls"); len(got) != 2 {
		t.Errorf("precache_urls should be untouched, got %v", got)
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("UPSTREAM_URL", "https://cinescope.example")
	t.Setenv("CACHE_VERSION", "v7")
	t.Setenv("CACHE_API_MAX_ENTRIES", "12")
	t.Setenv("CACHE_PRECACHE_URLS", "/,/offline.html,/app.js")
	t.Setenv("QUEUE_SYNC_INTERVAL", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Upstream.URL != "https://cinescope.example" {
		t.Errorf("Upstream.URL = %q", cfg.Upstream.URL)
	}
	if cfg.Cache.Version != "v7" {
		t.Errorf("Cache.Version = %q, want v7", cfg.Cache.Version)
	}
	if cfg.Cache.APIMaxEntries != 12 {
		t.Errorf("Cache.APIMaxEntries = %d, want 12", cfg.Cache.APIMaxEntries)
	}
	if len(cfg.Cache.PrecacheURLs) != 3 || cfg.Cache.PrecacheURLs[2] != "/app.js" {
		t.Errorf("Cache.PrecacheURLs = %v", cfg.Cache.PrecacheURLs)
	}
	if cfg.Queue.SyncInterval != 30*time.Second {
		t.Errorf("Queue.SyncInterval = %v, want 30s", cfg.Queue.SyncInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
upstream:
  url: http://origin.internal:9000
cache:
  version: v3
  image_max_entries: 80
security:
  cors_origins:
    - https://app.cinescope.example
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CACHE_VERSION", "v4")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Upstream.URL != "http://origin.internal:9000" {
		t.Errorf("Upstream.URL = %q", cfg.Upstream.URL)
	}
	if cfg.Cache.ImageMaxEntries != 80 {
		t.Errorf("Cache.ImageMaxEntries = %d, want 80", cfg.Cache.ImageMaxEntries)
	}
	if cfg.Cache.Version != "v4" {
		t.Errorf("env should win over file, Cache.Version = %q", cfg.Cache.Version)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "https://app.cinescope.example" {
		t.Errorf("Security.CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Cache.RuntimeMaxEntries != 100 {
		t.Errorf("unset fields keep defaults, RuntimeMaxEntries = %d", cfg.Cache.RuntimeMaxEntries)
	}
}

func TestLoadWithKoanf_InvalidFails(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("UPSTREAM_URL", "ftp://origin")

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected validation error for ftp upstream")
	}
}

func TestFindConfigFile_EnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	if got := findConfigFile(); got != path {
		t.Errorf("findConfigFile() = %q, want %q", got, path)
	}
}
