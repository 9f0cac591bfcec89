// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package api is the HTTP surface of the edge, routed with chi.

Every path outside /_sw/ and /metrics is a fetch event: the request is handed
to the worker, which answers GETs through a caching strategy and passes
everything else through to the origin. Requests may arrive in origin form
(resolved against the configured upstream) or in absolute form, the way a
forward proxy sees them.

Control endpoints:

	POST   /_sw/message             control command (SKIP_WAITING, CACHE_URLS, CLEAR_CACHE)
	GET    /_sw/ws                  websocket: commands in, broadcasts out
	POST   /_sw/sync/{tag}          drain pending actions for a sync tag
	POST   /_sw/actions             enqueue a pending action
	GET    /_sw/actions             list pending actions (?type=rating)
	PUT    /_sw/data/{key}          store a cached-data record
	GET    /_sw/data/{key}          read a cached-data record
	DELETE /_sw/data/{key}          delete a cached-data record
	POST   /_sw/push                deliver a push payload as a notification
	POST   /_sw/notificationclick   react to a notification action
	GET    /_sw/state               lifecycle state, version and stores
	GET    /_sw/health/live         liveness check
	GET    /_sw/health/ready        readiness check (worker active, queue readable)
	GET    /metrics                 Prometheus scrape

Control endpoints answer with the JSON envelope in response.go. Fetch
responses are the stored or live responses themselves, with
X-Cinescope-Source and X-Cinescope-Store describing how they were produced.

Commands are fire-and-forget: a valid command is answered 202 Accepted as
soon as it is scheduled. Invalid commands are answered 400 with the
validation details.
*/
package api
