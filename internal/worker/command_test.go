// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package worker

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/validation"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`{"type":"SKIP_WAITING"}`, CommandSkipWaiting, false},
		{`{"type":"CLEAR_CACHE"}`, CommandClearCache, false},
		{`{"type":"CACHE_URLS","urls":["/","/movies/1"]}`, CommandCacheURLs, false},
		{`{"type":"CACHE_URLS","urls":["https://image.tmdb.org/t/p/a.jpg"]}`, CommandCacheURLs, false},
		{`{"type":"CACHE_URLS","urls":["http://169.254.169.254/latest/meta-data"]}`, "", true},
		{`{"type":"CACHE_URLS","urls":["http://origin.test.evil.example/"]}`, "", true},
		{`{"type":"CACHE_URLS"}`, "", true},
		{`{"type":"CACHE_URLS","urls":["javascript:alert(1)"]}`, "", true},
		{`{"type":"RELOAD"}`, "", true},
		{`{}`, "", true},
		{`not json`, "", true},
	}
	w := newHarness(t).worker(t, "v1", false)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cmd, err := w.ParseCommand(context.Background(), []byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("err = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cmd.Type != tt.want {
				t.Errorf("Type = %q", cmd.Type)
			}
		})
	}
}

func TestParseCommand_ExposesValidationDetails(t *testing.T) {
	w := newHarness(t).worker(t, "v1", false)
	_, err := w.ParseCommand(context.Background(), []byte(`{"type":"RELOAD"}`))
	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want a validation error inside", err)
	}
	if verr.Errors()[0].Field() != "type" {
		t.Errorf("field = %q", verr.Errors()[0].Field())
	}
}

func TestMessage_ClearCache(t *testing.T) {
	h := newHarness(t)
	w := h.worker(t, "v1", false)
	ctx := context.Background()
	if err := w.Install(ctx); err != nil {
		t.Fatal(err)
	}
	h.origin.set("/api/movies/1", "one")
	h.origin.set("/poster.png", "png")
	get(t, w, "/api/movies/1", false)
	get(t, w, "/poster.png", false)
	w.Wait()

	if err := w.Message(ctx, Command{Type: CommandClearCache}); err != nil {
		t.Fatal(err)
	}
	w.Wait()

	for _, u := range []string{"/api/movies/1", "/poster.png", "/", "/offline.html"} {
		if _, ok, _ := h.manager.MatchAny(ctx, cachestore.DescriptorKey(http.MethodGet, u)); ok {
			t.Errorf("%s still cached after CLEAR_CACHE", u)
		}
	}
	if names, _ := h.manager.Names(ctx); len(names) != 0 {
		t.Errorf("stores left: %v", names)
	}
	if msg, _ := h.notifier.last(); msg != MessageCacheCleared {
		t.Errorf("last broadcast = %q", msg)
	}

	h.origin.setOffline(true)
	resp, _ := get(t, w, "/api/movies/1", false)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("lookup after clear returned %d", resp.StatusCode)
	}
}

func TestMessage_CacheURLs(t *testing.T) {
	h := newHarness(t)
	w := h.worker(t, "v3", false)
	ctx := context.Background()
	h.origin.set("/movies/1", "m1")
	h.origin.set("/movies/2", "m2")

	if err := w.Message(ctx, Command{Type: CommandCacheURLs, URLs: []string{"/movies/1", "/movies/2"}}); err != nil {
		t.Fatal(err)
	}
	w.Wait()

	runtime, _ := h.manager.Open(ctx, "cinescope-runtime-v3")
	keys, _ := runtime.Keys(ctx)
	if len(keys) != 2 {
		t.Errorf("runtime keys = %v", keys)
	}

	// A failing entry stores nothing from the batch.
	if err := w.Message(ctx, Command{Type: CommandCacheURLs, URLs: []string{"/movies/3", "/missing"}}); err != nil {
		t.Fatal(err)
	}
	w.Wait()
	if n, _ := runtime.Len(ctx); n != 2 {
		t.Errorf("runtime store has %d entries", n)
	}
}

func TestMessage_SkipWaiting(t *testing.T) {
	h := newHarness(t)
	w := h.worker(t, "v1", false)
	ctx := context.Background()

	// Parsed workers ignore it.
	if err := w.Message(ctx, Command{Type: CommandSkipWaiting}); err != nil {
		t.Fatal(err)
	}
	w.Wait()
	if w.State() != StateParsed {
		t.Errorf("state = %s", w.State())
	}

	w.setState(StateWaiting)
	if err := w.Message(ctx, Command{Type: CommandSkipWaiting}); err != nil {
		t.Fatal(err)
	}
	w.Wait()
	if w.State() != StateActive {
		t.Errorf("state = %s, want active", w.State())
	}
}

func TestMessage_Invalid(t *testing.T) {
	h := newHarness(t)
	w := h.worker(t, "v1", false)
	if err := w.Message(context.Background(), Command{Type: "NOPE"}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("err = %v", err)
	}

	h.origin.set("http://10.0.0.1/admin", "secret")
	cmd := Command{Type: CommandCacheURLs, URLs: []string{"http://10.0.0.1/admin"}}
	if err := w.Message(context.Background(), cmd); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("foreign host: err = %v", err)
	}
	w.Wait()
	if names, _ := h.manager.Names(context.Background()); len(names) != 0 {
		t.Errorf("stores created: %v", names)
	}
}
