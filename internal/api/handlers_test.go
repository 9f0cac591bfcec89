// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/offline"
	"github.com/tomtom215/cinescope/internal/worker"
)

func TestFetch_CachesAPIAndServesOffline(t *testing.T) {
	e := newTestEdge(t)
	e.install(t)

	rec := e.do(http.MethodGet, "/api/movies/1", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `{"id":1,"title":"Heat"}` {
		t.Fatalf("online: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(worker.HeaderCacheSource) != "network" {
		t.Errorf("source = %q", rec.Header().Get(worker.HeaderCacheSource))
	}

	e.origin.setOffline(true)
	rec = e.do(http.MethodGet, "/api/movies/1", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `{"id":1,"title":"Heat"}` {
		t.Fatalf("offline: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(worker.HeaderCacheStore) != "cinescope-api-v1" {
		t.Errorf("store = %q", rec.Header().Get(worker.HeaderCacheStore))
	}
	if rec.Header().Get("Content-Type") != "text/plain" {
		t.Errorf("stored headers not replayed: %v", rec.Header())
	}
}

func TestFetch_OfflineNavigationGetsOfflinePage(t *testing.T) {
	e := newTestEdge(t)
	e.install(t)
	e.origin.setOffline(true)

	rec := e.do(http.MethodGet, "/movies/42", "", http.Header{"Accept": {"text/html,application/xhtml+xml"}})
	if rec.Code != http.StatusOK || rec.Body.String() != "offline page" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	rec = e.do(http.MethodGet, "/movies/42", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("non-navigation got %d", rec.Code)
	}
}

func TestFetch_StaticMissWhileOfflineIs502(t *testing.T) {
	e := newTestEdge(t)
	e.install(t)
	e.origin.setOffline(true)

	rec := e.do(http.MethodGet, "/app.js", "", nil)
	if rec.Code != http.StatusBadGateway || rec.Body.Len() != 0 {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestFetch_ImageAbsoluteForm(t *testing.T) {
	e := newTestEdge(t)
	e.install(t)

	rec := e.do(http.MethodGet, "http://image.tmdb.org/t/p/poster.jpg", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get(worker.HeaderCacheStore) != "cinescope-images-v1" {
		t.Errorf("got %d store %q", rec.Code, rec.Header().Get(worker.HeaderCacheStore))
	}
}

func TestFetch_ForeignHostForbidden(t *testing.T) {
	e := newTestEdge(t)
	e.install(t)
	before := e.origin.fetches()

	for _, target := range []string{
		"http://169.254.169.254/latest/meta-data",
		"http://localhost:8080/api/movies/1",
		"https://image.tmdb.org.evil.example/t/p/poster.jpg",
	} {
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			rec := e.do(method, target, "", nil)
			if rec.Code != http.StatusForbidden {
				t.Errorf("%s %s: got %d", method, target, rec.Code)
				continue
			}
			if _, _, apiErr := decodeEnvelope(t, rec); apiErr == nil || apiErr.Code != ErrCodeForbidden {
				t.Errorf("%s %s: error = %+v", method, target, apiErr)
			}
		}
	}
	if got := e.origin.fetches(); got != before {
		t.Errorf("origin fetched %d times for foreign hosts", got-before)
	}

	// The configured origin in absolute form is still served.
	if rec := e.do(http.MethodGet, "http://origin.test/api/movies/1", "", nil); rec.Code != http.StatusOK {
		t.Errorf("origin absolute form got %d", rec.Code)
	}
}

func TestFetch_MutationPassesThrough(t *testing.T) {
	e := newTestEdge(t)
	e.install(t)

	rec := e.do(http.MethodPost, "/api/ratings", `{"stars":5}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if got := e.origin.mutations(); len(got) != 1 || got[0] != "POST /api/ratings" {
		t.Errorf("origin saw %v", got)
	}

	e.origin.setOffline(true)
	rec = e.do(http.MethodPost, "/api/ratings", `{"stars":5}`, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("offline mutation got %d", rec.Code)
	}
	if _, _, apiErr := decodeEnvelope(t, rec); apiErr == nil || apiErr.Code != ErrCodeNetwork {
		t.Errorf("error = %+v", apiErr)
	}
}

func TestMessage_ClearCacheAccepted(t *testing.T) {
	e := newTestEdge(t)
	e.install(t)
	e.do(http.MethodGet, "/api/movies/1", "", nil)

	rec := e.do(http.MethodPost, "/_sw/message", `{"type":"CLEAR_CACHE"}`, nil)
	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	e.worker.Wait()

	names, err := e.manager.Names(context.Background())
	if err != nil || len(names) != 0 {
		t.Errorf("stores after CLEAR_CACHE: %v %v", names, err)
	}
}

func TestMessage_Rejected(t *testing.T) {
	e := newTestEdge(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"unknown type", `{"type":"RELOAD"}`, ErrCodeValidationFailed},
		{"cache urls without urls", `{"type":"CACHE_URLS"}`, ErrCodeValidationFailed},
		{"bad url", `{"type":"CACHE_URLS","urls":["ftp://x"]}`, ErrCodeValidationFailed},
		{"foreign host", `{"type":"CACHE_URLS","urls":["/ok","http://169.254.169.254/latest/meta-data"]}`, ErrCodeValidationFailed},
		{"malformed", `{"type":`, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/_sw/message", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("got %d", rec.Code)
			}
			if _, _, apiErr := decodeEnvelope(t, rec); apiErr == nil || apiErr.Code != tt.code {
				t.Errorf("error = %+v, want code %s", apiErr, tt.code)
			}
		})
	}
}

func TestMessage_CacheURLs(t *testing.T) {
	e := newTestEdge(t)

	rec := e.do(http.MethodPost, "/_sw/message", `{"type":"CACHE_URLS","urls":["/movies/1","/app.js","http://image.tmdb.org/t/p/poster.jpg"]}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d", rec.Code)
	}
	e.worker.Wait()

	store, err := e.manager.Open(context.Background(), "cinescope-runtime-v1")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Len(context.Background()); n != 3 {
		t.Errorf("runtime store has %d entries", n)
	}
}

func TestActions_EnqueueListAndSync(t *testing.T) {
	e := newTestEdge(t)

	rec := e.do(http.MethodPost, "/_sw/actions", `{"type":"rating","url":"/api/ratings/9","body":"{\"stars\":3}"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue got %d %s", rec.Code, rec.Body.String())
	}
	_, data, _ := decodeEnvelope(t, rec)
	var created offline.Action
	if err := json.Unmarshal(data, &created); err != nil || created.ID == 0 || created.Method != http.MethodPost {
		t.Fatalf("created = %+v %v", created, err)
	}

	rec = e.do(http.MethodGet, "/_sw/actions?type=rating", "", nil)
	_, data, _ = decodeEnvelope(t, rec)
	var listed []offline.Action
	if err := json.Unmarshal(data, &listed); err != nil || len(listed) != 1 {
		t.Fatalf("listed = %s", data)
	}

	rec = e.do(http.MethodGet, "/_sw/actions?type=review", "", nil)
	if _, data, _ = decodeEnvelope(t, rec); string(data) != "[]" {
		t.Errorf("reviews = %s", data)
	}

	rec = e.do(http.MethodPost, "/_sw/sync/sync-ratings", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync got %d", rec.Code)
	}
	_, data, _ = decodeEnvelope(t, rec)
	var res offline.SyncResult
	if err := json.Unmarshal(data, &res); err != nil || res.Delivered != 1 {
		t.Errorf("sync result = %s", data)
	}
	if got := e.origin.mutations(); len(got) != 1 || got[0] != "POST /api/ratings/9" {
		t.Errorf("origin saw %v", got)
	}
}

func TestActions_Invalid(t *testing.T) {
	e := newTestEdge(t)
	for _, body := range []string{
		`{"type":"badge","url":"/api/badges"}`,
		`{"type":"rating"}`,
		`{"type":"rating","url":"/api/ratings","method":"GET"}`,
		`{"type":"rating","url":"http://169.254.169.254/latest/meta-data"}`,
		`{"type":"review","url":"https://attacker.example/collect"}`,
	} {
		if rec := e.do(http.MethodPost, "/_sw/actions", body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d", body, rec.Code)
		}
	}
	if n, _ := e.queue.Count(context.Background()); n != 0 {
		t.Errorf("queued %d invalid actions", n)
	}
}

func TestSync_UnknownTag(t *testing.T) {
	e := newTestEdge(t)
	if rec := e.do(http.MethodPost, "/_sw/sync/sync-badges", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("got %d", rec.Code)
	}
}

func TestCachedData(t *testing.T) {
	e := newTestEdge(t)

	if rec := e.do(http.MethodPut, "/_sw/data/profile", `{"name":"ana"}`, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("put got %d", rec.Code)
	}
	rec := e.do(http.MethodGet, "/_sw/data/profile", "", nil)
	if _, data, _ := decodeEnvelope(t, rec); string(data) != `{"name":"ana"}` {
		t.Errorf("get = %s", data)
	}
	if rec := e.do(http.MethodPut, "/_sw/data/bad", `{`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON got %d", rec.Code)
	}
	if rec := e.do(http.MethodDelete, "/_sw/data/profile", "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete got %d", rec.Code)
	}
	if rec := e.do(http.MethodGet, "/_sw/data/profile", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete got %d", rec.Code)
	}
}

func TestPush(t *testing.T) {
	e := newTestEdge(t)

	rec := e.do(http.MethodPost, "/_sw/push", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	_, data, _ := decodeEnvelope(t, rec)
	var n worker.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatal(err)
	}
	if n.Title != worker.DefaultNotificationTitle || n.Data.URL != "/" || len(n.Actions) != 2 {
		t.Errorf("notification = %+v", n)
	}

	for _, body := range []string{
		`{"title":"Watch party","url":"javascript:alert(1)"}`,
		`{"title":"Watch party","url":"https://attacker.example/"}`,
	} {
		if rec := e.do(http.MethodPost, "/_sw/push", body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d", body, rec.Code)
		}
	}
}

func TestNotificationClick(t *testing.T) {
	e := newTestEdge(t)

	rec := e.do(http.MethodPost, "/_sw/notificationclick", `{"action":"close","data":{"url":"/movies/1"}}`, nil)
	if _, data, _ := decodeEnvelope(t, rec); !strings.Contains(string(data), `"opened":false`) {
		t.Errorf("close = %s", data)
	}
	rec = e.do(http.MethodPost, "/_sw/notificationclick", `{"action":"view","data":{"url":"/movies/1"}}`, nil)
	if _, data, _ := decodeEnvelope(t, rec); !strings.Contains(string(data), `"opened":true`) {
		t.Errorf("view = %s", data)
	}
}

func TestStateAndReadiness(t *testing.T) {
	e := newTestEdge(t)

	if rec := e.do(http.MethodGet, "/_sw/health/ready", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before install got %d", rec.Code)
	}
	if rec := e.do(http.MethodGet, "/_sw/health/live", "", nil); rec.Code != http.StatusOK {
		t.Errorf("live got %d", rec.Code)
	}

	e.install(t)
	if rec := e.do(http.MethodGet, "/_sw/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Errorf("ready after install got %d", rec.Code)
	}

	rec := e.do(http.MethodGet, "/_sw/state", "", nil)
	_, data, _ := decodeEnvelope(t, rec)
	var state StateResponse
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatal(err)
	}
	if state.State != worker.StateActive || state.Version != "v1" || len(state.Stores) != 1 || state.Stores[0] != "cinescope-v1" {
		t.Errorf("state = %+v", state)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEdge(t)
	e.do(http.MethodGet, "/_sw/health/live", "", nil)
	rec := e.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Errorf("metrics got %d", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	e := newTestEdge(t)
	rec := e.do(http.MethodGet, "/_sw/health/live", "", http.Header{"X-Request-Id": {"req-123"}})
	if rec.Header().Get("X-Request-ID") != "req-123" {
		t.Errorf("request id = %q", rec.Header().Get("X-Request-ID"))
	}
}
