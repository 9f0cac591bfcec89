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
	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/offline"
)

// EnqueueActionRequest is the body of POST /_sw/actions.
type EnqueueActionRequest struct {
	Type    string            `json:"type" validate:"required,oneof=rating watchlist review"`
	URL     string            `json:"url" validate:"required,fetchurl"`
	Method  string            `json:"method,omitempty" validate:"omitempty,oneof=POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers,omitempty" validate:"max=32"`
	Body    string            `json:"body,omitempty" validate:"max=1048576"`
}

// EnqueueAction stores an action the page could not deliver. It is replayed
// by the next sync of the matching tag.
func (h *Handler) EnqueueAction(w http.ResponseWriter, r *http.Request) {
	var req EnqueueActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", nil)
		return
	}
	if verr := h.validate(r, &req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}

	action, err := h.queue.Enqueue(r.Context(), offline.Action{
		Type:    req.Type,
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Body:    req.Body,
	}, offline.OriginClient)
	if err != nil {
		if errors.Is(err, offline.ErrInvalidAction) || errors.Is(err, offline.ErrUnknownType) {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid action", nil)
			return
		}
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Queue unavailable", err)
		return
	}
	respondData(w, r, http.StatusCreated, action)
}

// ListActions returns pending actions in insertion order, optionally
// filtered with ?type=.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	var (
		actions []*offline.Action
		err     error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		actions, err = h.queue.ListByType(r.Context(), t)
	} else {
		actions, err = h.queue.All(r.Context())
	}
	if err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Queue unavailable", err)
		return
	}
	if actions == nil {
		actions = []*offline.Action{}
	}
	respondData(w, r, http.StatusOK, actions)
}

// PutData stores a JSON document under key.
func (h *Handler) PutData(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Unreadable request body", err)
		return
	}
	if err := h.queue.PutData(r.Context(), key, json.RawMessage(raw)); err != nil {
		if errors.Is(err, offline.ErrEmptyDataKey) || errors.Is(err, offline.ErrInvalidData) {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
			return
		}
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Store unavailable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetData returns the JSON document stored under key.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	value, err := h.queue.GetData(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, offline.ErrDataNotFound) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "No data for key", nil)
			return
		}
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Store unavailable", err)
		return
	}
	respondData(w, r, http.StatusOK, value)
}

// DeleteData removes the document stored under key.
func (h *Handler) DeleteData(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.DeleteData(r.Context(), chi.URLParam(r, "key")); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Store unavailable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
