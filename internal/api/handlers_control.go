// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/cinescope/internal/offline"
	"github.com/tomtom215/cinescope/internal/validation"
	"github.com/tomtom215/cinescope/internal/worker"
)

// Message accepts a control command. Valid commands are answered 202 as
// soon as they are scheduled.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Unreadable request body", err)
		return
	}

	if err := h.HandleCommand(r.Context(), raw); err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			respondValidationError(w, r, verr)
			return
		}
		if errors.Is(err, worker.ErrInvalidCommand) {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid command", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Command failed", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Sync drains the pending actions of one sync tag and reports the outcome.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	res, err := h.worker.Sync(r.Context(), tag)
	if err != nil {
		if errors.Is(err, offline.ErrUnknownSyncTag) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Unknown sync tag", nil)
			return
		}
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Sync aborted", err)
		return
	}
	respondData(w, r, http.StatusOK, res)
}

// Push turns a push payload into a notification for connected pages. An
// empty body uses the default title, body and URL.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Unreadable request body", err)
		return
	}
	payload, err := worker.ParsePush(raw)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid push payload", nil)
		return
	}
	if verr := h.validate(r, &payload); verr != nil {
		respondValidationError(w, r, verr)
		return
	}
	respondData(w, r, http.StatusOK, h.worker.Push(r.Context(), payload))
}

// NotificationClickRequest is the body of /_sw/notificationclick.
type NotificationClickRequest struct {
	Action string                  `json:"action" validate:"max=64"`
	Data   worker.NotificationData `json:"data"`
}

// NotificationClick reports a click on a notification.
func (h *Handler) NotificationClick(w http.ResponseWriter, r *http.Request) {
	var req NotificationClickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", nil)
		return
	}
	if verr := h.validate(r, &req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}
	opened := h.worker.NotificationClick(r.Context(), req.Action, req.Data)
	respondData(w, r, http.StatusOK, map[string]bool{"opened": opened})
}
