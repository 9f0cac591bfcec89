// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/offline"
	"github.com/tomtom215/cinescope/internal/validation"
	ws "github.com/tomtom215/cinescope/internal/websocket"
	"github.com/tomtom215/cinescope/internal/worker"
)

// Handler translates HTTP requests into worker events.
//
// Handler methods are split across files:
//   - handlers_fetch.go: the catch-all fetch event
//   - handlers_control.go: command, sync, push and notification endpoints
//   - handlers_queue.go: pending actions and cached data
//   - handlers_health.go: state and health checks
//   - handlers_websocket.go: the page channel
type Handler struct {
	worker    *worker.Worker
	queue     *offline.Queue
	wsHub     *ws.Hub
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a handler. hub may be nil when the websocket channel
// is not served.
func NewHandler(w *worker.Worker, q *offline.Queue, hub *ws.Hub, cfg *config.Config) *Handler {
	return &Handler{
		worker:    w,
		queue:     q,
		wsHub:     hub,
		config:    cfg,
		startTime: time.Now(),
	}
}

// HandleCommand decodes and runs one command. It is the websocket hub's
// command handler, so both control channels share validation.
func (h *Handler) HandleCommand(ctx context.Context, raw []byte) error {
	cmd, err := h.worker.ParseCommand(ctx, raw)
	if err != nil {
		return err
	}
	return h.worker.Message(ctx, cmd)
}

// validate checks a request body, accepting absolute URLs only on the hosts
// the worker fetches from.
func (h *Handler) validate(r *http.Request, s interface{}) *validation.RequestValidationError {
	ctx := validation.WithHostAllower(r.Context(), h.worker.Hosts())
	return validation.ValidateStructCtx(ctx, s)
}

// getUpgrader creates a websocket upgrader with origin checking.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts origins listed in security.cors_origins.
// Browsers always send Origin on websocket upgrades, so a missing header
// is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if h.config == nil {
		return true
	}
	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
