// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package router classifies intercepted requests and hands them to the caching
strategy responsible for their class.

Classification is evaluated in priority order:

 1. API path prefix          network-first, api store, capped
 2. image host or extension  cache-first with expiry, images store, capped
 3. static asset extension   stale-while-revalidate, runtime store
 4. anything else            network-first, runtime store, capped

Only GET requests are intercepted. Everything else goes to the network
untouched; see Intercepts.
*/
package router

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/strategy"
)

// Class is the request category that selects a strategy.
type Class string

const (
	ClassAPI        Class = "api"
	ClassImage      Class = "image"
	ClassStatic     Class = "static"
	ClassNavigation Class = "navigation"
)

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"svg": true, "webp": true, "avif": true,
}

var staticExtensions = map[string]bool{
	"js": true, "css": true, "woff": true, "woff2": true, "ttf": true, "eot": true,
}

// Classifier maps a request URL to its Class.
type Classifier struct {
	APIPrefix string
	ImageHost string
}

// Classify returns the class of u. Host is taken from u, falling back to
// host when u is in origin form.
func (c Classifier) Classify(u *url.URL, host string) Class {
	if c.APIPrefix != "" && strings.HasPrefix(u.Path, c.APIPrefix) {
		return ClassAPI
	}

	if u.Host != "" {
		host = u.Host
	}
	ext := Extension(u.Path)
	if (c.ImageHost != "" && strings.Contains(strings.ToLower(host), c.ImageHost)) || imageExtensions[ext] {
		return ClassImage
	}
	if staticExtensions[ext] {
		return ClassStatic
	}
	return ClassNavigation
}

// Extension returns the lower-cased extension of the last path segment,
// without the dot.
func Extension(p string) string {
	ext := path.Ext(path.Base(p))
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// Intercepts reports whether r is handled by a caching strategy.
func Intercepts(r *http.Request) bool {
	return r.Method == http.MethodGet
}

// IsNavigation reports whether r loads a full document rather than a
// sub-resource.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// Route is the strategy and target store chosen for a class.
type Route struct {
	Class    Class
	Strategy strategy.Strategy
	Store    string
}

// Router dispatches intercepted requests.
type Router struct {
	classifier Classifier
	routes     map[Class]Route
}

// New builds the four routes over deps for the stores named by names.
func New(cfg config.CacheConfig, names cachestore.Names, deps *strategy.Deps) *Router {
	routes := map[Class]Route{
		ClassAPI: {
			Class:    ClassAPI,
			Store:    names.API(),
			Strategy: &strategy.NetworkFirst{Deps: deps, Store: names.API(), Max: cfg.APIMaxEntries},
		},
		ClassImage: {
			Class: ClassImage,
			Store: names.Images(),
			Strategy: &strategy.CacheFirst{
				Deps:   deps,
				Store:  names.Images(),
				Max:    cfg.ImageMaxEntries,
				MaxAge: cfg.ImageMaxAge,
			},
		},
		ClassStatic: {
			Class:    ClassStatic,
			Store:    names.Runtime(),
			Strategy: &strategy.StaleWhileRevalidate{Deps: deps, Store: names.Runtime()},
		},
		ClassNavigation: {
			Class:    ClassNavigation,
			Store:    names.Runtime(),
			Strategy: &strategy.NetworkFirst{Deps: deps, Store: names.Runtime(), Max: cfg.RuntimeMaxEntries},
		},
	}
	return &Router{
		classifier: Classifier{APIPrefix: cfg.APIPrefix, ImageHost: strings.ToLower(cfg.ImageHost)},
		routes:     routes,
	}
}

// Route returns the route r would be dispatched to.
func (rt *Router) Route(r *http.Request) Route {
	return rt.routes[rt.classifier.Classify(r.URL, r.Host)]
}

// Dispatch runs the strategy for an intercepted request.
func (rt *Router) Dispatch(ctx context.Context, r *http.Request) (strategy.Result, Route, error) {
	route := rt.Route(r)
	res, err := route.Strategy.Handle(ctx, strategy.NewRequest(r, IsNavigation(r)))
	return res, route, err
}
