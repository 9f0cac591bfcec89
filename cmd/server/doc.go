// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package main is the entry point for CineScope Edge, the offline caching and
sync gateway that sits in front of the CineScope+ origin.

Every request that is not a control request is a fetch event. GET requests
are answered by a caching strategy chosen from the URL:

  - API calls (CACHE_API_PREFIX): network first, cached copy when offline
  - TMDB images (CACHE_IMAGE_HOST or an image extension): cache first
  - Static assets: stale while revalidate
  - Everything else: network first, offline page for navigations

Other methods go straight to the origin. Mutations on QUEUE_CAPTURE_ROUTES
can be queued when the origin is unreachable and replayed later.

Only the origin (UPSTREAM_URL) and CACHE_IMAGE_HOST are ever fetched. An
absolute-form request for any other host is answered 403. Responses larger
than CACHE_MAX_ENTRY_BYTES, and any status other than 200, are streamed to
the client without being cached.

# Application Architecture

	RootSupervisor ("cinescope")
	├── StorageSupervisor ("storage-layer")
	│   ├── badger-gc-cache
	│   └── badger-gc-queue
	├── EdgeSupervisor ("edge-layer")
	│   ├── worker-install
	│   ├── offline-sync (when QUEUE_SYNC_INTERVAL > 0)
	│   └── websocket-hub
	└── APISupervisor ("api-layer")
	    └── http-server

Startup order:

 1. Configuration: Koanf v2, defaults < config.yaml < environment
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Storage: two Badger databases, one for cache stores, one for the queue
 4. Upstream: HTTP fetcher behind a gobreaker circuit breaker
 5. Worker: strategies, router, offline queue and syncer
 6. HTTP: chi router with the /_sw control surface and the catch-all
 7. Supervisor tree: install, sync, hub, GC and the HTTP server

# Configuration

The essentials:

	UPSTREAM_URL=http://origin:3000   # CineScope+ origin
	CACHE_VERSION=v2                  # bump to purge older stores on activation
	CACHE_PATH=/data/cache            # Badger directory for cache stores
	QUEUE_PATH=/data/queue            # Badger directory for the offline queue
	CORS_ORIGINS=https://app.example  # allowed origins for /_sw and the page channel

Set BADGER_IN_MEMORY=true to run without disk state.

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains for
SHUTDOWN_TIMEOUT, running loops stop, and the databases are closed last.

# Example Usage

	export UPSTREAM_URL=http://localhost:3000
	export CACHE_PATH=./data/cache QUEUE_PATH=./data/queue
	./cinescope-edge

	curl -s localhost:8080/_sw/state | jq .
	curl -s -XPOST localhost:8080/_sw/message -d '{"type":"CLEAR_CACHE"}'
*/
package main
