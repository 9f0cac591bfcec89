// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/tomtom215/cinescope/internal/fetch"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/strategy"
)

// Fetch is the catch-all: every request outside the control paths is a
// fetch event. The worker's response is copied to the client as is.
//
// A stale-while-revalidate miss with the network down has nothing to
// answer with and becomes an empty 502. A pass-through that fails on the
// network becomes a 502 with an error envelope. An absolute URL on a host
// the edge does not fetch from is a 403.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	resp, err := h.worker.Fetch(r.Context(), r)
	if err != nil {
		switch {
		case r.Context().Err() != nil:
			// Client went away.
			return
		case errors.Is(err, fetch.ErrHostNotAllowed):
			respondError(w, r, http.StatusForbidden, ErrCodeForbidden, "Host not allowed", nil)
		case errors.Is(err, strategy.ErrNoResponse):
			logging.Ctx(r.Context()).Debug().Str("url", sanitizeLogValue(r.URL.String())).Msg("No response available")
			w.WriteHeader(http.StatusBadGateway)
		case errors.Is(err, fetch.ErrNetwork):
			respondError(w, r, http.StatusBadGateway, ErrCodeNetwork, "Upstream unreachable", err)
		default:
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Fetch failed", err)
		}
		return
	}
	defer resp.Body.Close()

	dst := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to copy response body")
	}
}
