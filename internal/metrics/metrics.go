// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

// Package metrics exposes the edge's Prometheus instrumentation.
//
// Metrics are registered on the default registry through promauto and are
// served at /metrics. Components call the Record* helpers rather than
// touching the vectors directly so label sets stay consistent.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache store metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_cache_lookups_total",
			Help: "Cache store lookups by store kind and result",
		},
		[]string{"store", "result"}, // result: "hit", "miss", "expired"
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_cache_writes_total",
			Help: "Cache store writes by store kind and outcome",
		},
		[]string{"store", "outcome"}, // outcome: "ok", "error", "too_large"
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinescope_cache_entries",
			Help: "Current number of entries per cache store",
		},
		[]string{"store"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_cache_evictions_total",
			Help: "Entries removed by FIFO trimming",
		},
		[]string{"store"},
	)

	CacheEvictionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_cache_eviction_errors_total",
			Help: "Trim passes that failed; failures never affect the response",
		},
		[]string{"store"},
	)

	CacheStoresPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinescope_cache_stores_purged_total",
			Help: "Stale-version stores deleted during activation",
		},
	)

	// Strategy metrics
	StrategyResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_strategy_responses_total",
			Help: "Responses produced by each caching strategy, by source",
		},
		[]string{"strategy", "source"}, // source: "network", "cache", "offline", "synthesized", "none"
	)

	RevalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_revalidations_total",
			Help: "Background stale-while-revalidate refreshes",
		},
		[]string{"result"},
	)

	// Upstream metrics
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinescope_upstream_duration_seconds",
			Help:    "Upstream fetch duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "outcome"}, // outcome: "ok", "error"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Offline queue metrics
	PendingActions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinescope_pending_actions",
			Help: "Actions waiting in the offline queue",
		},
	)

	ActionsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_actions_enqueued_total",
			Help: "Actions added to the offline queue",
		},
		[]string{"type", "origin"}, // origin: "client", "captured"
	)

	SyncReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_sync_replays_total",
			Help: "Replayed offline actions by sync tag and result",
		},
		[]string{"tag", "result"}, // result: "delivered", "retained"
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinescope_sync_duration_seconds",
			Help:    "Duration of one sync drain",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tag"},
	)

	SyncLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinescope_sync_last_run_timestamp",
			Help: "Unix time of the last completed drain per tag",
		},
		[]string{"tag"},
	)

	// Storage metrics
	BadgerGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_badger_gc_runs_total",
			Help: "Badger value log GC passes by database and result",
		},
		[]string{"db", "result"}, // result: "rewritten", "noop", "error"
	)

	// Lifecycle metrics
	WorkerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinescope_worker_state",
			Help: "1 for the current lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)

	WorkerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinescope_worker_events_total",
			Help: "Lifecycle, message, push and notification events handled",
		},
		[]string{"event", "outcome"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "cache_version"},
	)
)

// RecordCacheLookup records a match against a cache store.
func RecordCacheLookup(store, result string) {
	CacheLookups.WithLabelValues(store, result).Inc()
}

// RecordCacheWrite records a put into a cache store.
func RecordCacheWrite(store string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CacheWrites.WithLabelValues(store, outcome).Inc()
}

// RecordCacheSkip records a response that was not written to store, e.g.
// because its body was over the size limit.
func RecordCacheSkip(store, reason string) {
	CacheWrites.WithLabelValues(store, reason).Inc()
}

// RecordEviction records the result of one trim pass.
func RecordEviction(store string, removed, remaining int, err error) {
	if err != nil {
		CacheEvictionErrors.WithLabelValues(store).Inc()
		return
	}
	CacheEvictions.WithLabelValues(store).Add(float64(removed))
	CacheEntries.WithLabelValues(store).Set(float64(remaining))
}

// RecordStrategyResponse records where a strategy's response came from.
func RecordStrategyResponse(strategy, source string) {
	StrategyResponses.WithLabelValues(strategy, source).Inc()
}

// RecordUpstream records one upstream fetch.
func RecordUpstream(method string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

// RecordReplay records one replayed offline action.
func RecordReplay(tag string, delivered bool) {
	result := "retained"
	if delivered {
		result = "delivered"
	}
	SyncReplays.WithLabelValues(tag, result).Inc()
}

// RecordSyncRun records a completed drain for tag.
func RecordSyncRun(tag string, duration time.Duration) {
	SyncDuration.WithLabelValues(tag).Observe(duration.Seconds())
	SyncLastRun.WithLabelValues(tag).Set(float64(time.Now().Unix()))
}

// SetWorkerState marks state as the only active lifecycle state.
func SetWorkerState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		WorkerState.WithLabelValues(s).Set(v)
	}
}

// RecordWorkerEvent records a handled lifecycle or client event.
func RecordWorkerEvent(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	WorkerEvents.WithLabelValues(event, outcome).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
