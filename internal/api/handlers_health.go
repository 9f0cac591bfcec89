// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/cinescope/internal/worker"
)

// StateResponse is the body of /_sw/state.
type StateResponse struct {
	worker.Status
	PendingActions int     `json:"pending_actions"`
	Clients        int     `json:"clients"`
	Uptime         float64 `json:"uptime_seconds"`
}

// State reports the lifecycle state, the cache version and the stores that
// currently exist.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	status, err := h.worker.Status(r.Context())
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Cache stores unavailable", err)
		return
	}
	resp := StateResponse{Status: status, Uptime: time.Since(h.startTime).Seconds()}
	if h.queue != nil {
		if n, err := h.queue.Count(r.Context()); err == nil {
			resp.PendingActions = n
		}
	}
	if h.wsHub != nil {
		resp.Clients = h.wsHub.GetClientCount()
	}
	respondData(w, r, http.StatusOK, resp)
}

// HealthLive answers 200 while the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady answers 200 once the worker is active and the offline queue
// can be read, 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	state := h.worker.State()
	queueReady := h.queue != nil
	if queueReady {
		_, err := h.queue.Count(r.Context())
		queueReady = err == nil
	}

	ready := state == worker.StateActive && queueReady
	statusCode := http.StatusOK
	status := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, r, statusCode, &APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"worker_state": state,
			"queue_ready":  queueReady,
		},
	})
}
