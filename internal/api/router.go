// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cinescope/internal/middleware"
)

// ControlPrefix is where the edge's own endpoints live. Everything else is
// a fetch event.
const ControlPrefix = "/_sw"

// Router assembles the chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router for handler.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi builds the HTTP handler.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Route(ControlPrefix, func(r chi.Router) {
		r.Use(router.chiMiddleware.CORS())

		// Health checks are not rate limited.
		r.Get("/health/live", router.handler.HealthLive)
		r.Get("/health/ready", router.handler.HealthReady)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.Get("/state", router.handler.State)
			r.Post("/message", router.handler.Message)
			r.Get("/ws", router.handler.WebSocket)
			r.Post("/sync/{tag}", router.handler.Sync)

			r.Post("/actions", router.handler.EnqueueAction)
			r.Get("/actions", router.handler.ListActions)

			r.Put("/data/{key}", router.handler.PutData)
			r.Get("/data/{key}", router.handler.GetData)
			r.Delete("/data/{key}", router.handler.DeleteData)

			r.Post("/push", router.handler.Push)
			r.Post("/notificationclick", router.handler.NotificationClick)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.HandleFunc("/", router.handler.Fetch)
	r.HandleFunc("/*", router.handler.Fetch)

	return r
}
