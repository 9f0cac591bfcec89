// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/fetch"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/offline"
	"github.com/tomtom215/cinescope/internal/storage"
	"github.com/tomtom215/cinescope/internal/strategy"
	ws "github.com/tomtom215/cinescope/internal/websocket"
	"github.com/tomtom215/cinescope/internal/worker"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

// fakeOrigin serves fixed pages and records mutations.
type fakeOrigin struct {
	mu       sync.Mutex
	offline  bool
	pages    map[string]string
	received []string
	calls    int
}

func (o *fakeOrigin) fetches() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *fakeOrigin) setOffline(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offline = v
}

func (o *fakeOrigin) mutations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.received...)
}

func (o *fakeOrigin) Fetch(_ context.Context, r *http.Request) (*http.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.offline {
		return nil, fmt.Errorf("%w: connection refused", fetch.ErrNetwork)
	}
	if r.Method != http.MethodGet {
		o.received = append(o.received, r.Method+" "+r.URL.Path)
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	}
	page, ok := o.pages[r.URL.Path]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: io.NopCloser(strings.NewReader("missing"))}, nil
	}
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	return &http.Response{StatusCode: http.StatusOK, Header: h, Body: io.NopCloser(strings.NewReader(page))}, nil
}

type testEdge struct {
	origin  *fakeOrigin
	manager *cachestore.Manager
	queue   *offline.Queue
	worker  *worker.Worker
	hub     *ws.Hub
	handler *Handler
	server  http.Handler
}

func newTestEdge(t *testing.T) *testEdge {
	t.Helper()
	ctx := context.Background()

	cacheDB, err := storage.OpenInMemory("api-cache")
	if err != nil {
		t.Fatal(err)
	}
	queueDB, err := storage.OpenInMemory("api-queue")
	if err != nil {
		t.Fatal(err)
	}
	manager, err := cachestore.NewManager(cacheDB)
	if err != nil {
		t.Fatal(err)
	}
	queue := offline.NewQueue(queueDB)
	if err := queue.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	origin := &fakeOrigin{pages: map[string]string{
		"/":               "home",
		"/offline.html":   "offline page",
		"/api/movies/1":   `{"id":1,"title":"Heat"}`,
		"/app.js":         "console.log(1)",
		"/movies/1":       "movie page",
		"/t/p/poster.jpg": "jpeg",
	}}

	cfg := &config.Config{
		Cache: config.CacheConfig{
			Version:             "v1",
			Prefix:              "cinescope",
			APIPrefix:           "/api/",
			ImageHost:           "image.tmdb.org",
			APIMaxEntries:       30,
			ImageMaxEntries:     50,
			RuntimeMaxEntries:   100,
			ImageMaxAge:         7 * 24 * time.Hour,
			PrecacheURLs:        []string{"/", "/offline.html"},
			OfflinePage:         "/offline.html",
			PrecacheConcurrency: 2,
		},
		Queue: config.QueueConfig{
			ReplayRate:    1000,
			ReplayBurst:   10,
			ReplayTimeout: time.Second,
		},
		Security: config.SecurityConfig{
			CORSOrigins:     []string{"https://app.cinescope.example"},
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
		},
	}

	hosts, err := fetch.NewHostPolicy("http://origin.test", cfg.Cache.ImageHost)
	if err != nil {
		t.Fatal(err)
	}

	hub := ws.NewHub()
	tasks := strategy.NewBackground(5 * time.Second)
	w := worker.New(cfg.Cache, cfg.Queue, worker.Deps{
		Manager: manager,
		Strategy: &strategy.Deps{
			Manager:    manager,
			Fetcher:    origin,
			Sink:       cachestore.LogSink{},
			Tasks:      tasks,
			OfflineKey: cachestore.DescriptorKey(http.MethodGet, cfg.Cache.OfflinePage),
		},
		Fetcher:  origin,
		Queue:    queue,
		Syncer:   offline.NewSyncer(queue, origin, cfg.Queue),
		Notifier: hub,
		Hosts:    hosts,
	})

	handler := NewHandler(w, queue, hub, cfg)
	hub.SetCommandHandler(handler.HandleCommand)
	router := NewRouter(handler, NewChiMiddleware(NewChiMiddlewareConfig(cfg.Security)))

	t.Cleanup(func() {
		w.Wait()
		_ = queue.Close()
		_ = manager.Close()
		_ = queueDB.Close()
		_ = cacheDB.Close()
	})

	return &testEdge{
		origin:  origin,
		manager: manager,
		queue:   queue,
		worker:  w,
		hub:     hub,
		handler: handler,
		server:  router.SetupChi(),
	}
}

func (e *testEdge) install(t *testing.T) {
	t.Helper()
	if err := e.worker.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
}

func (e *testEdge) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope parses a control response, with data left raw.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (string, json.RawMessage, *APIError) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *APIError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env.Status, env.Data, env.Error
}
