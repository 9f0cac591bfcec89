// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/storage"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := storage.OpenInMemory("offline-test")
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueue(db)
	if err := q.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = q.Close()
		_ = db.Close()
	})
	return q
}

func TestQueue_RequiresMigration(t *testing.T) {
	db, err := storage.OpenInMemory("offline-unmigrated")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	q := NewQueue(db)

	ctx := context.Background()
	if _, err := q.Enqueue(ctx, Action{Type: TypeRating, URL: "/api/ratings"}, OriginClient); !errors.Is(err, ErrNotMigrated) {
		t.Errorf("Enqueue before Migrate: %v", err)
	}
	if _, err := q.GetData(ctx, "k"); !errors.Is(err, ErrNotMigrated) {
		t.Errorf("GetData before Migrate: %v", err)
	}

	if err := q.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := q.Migrate(ctx); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
	_ = q.Close()
}

func TestQueue_EnqueueAssignsMonotonicIDs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		a, err := q.Enqueue(ctx, Action{Type: TypeWatchlist, URL: "/api/watchlist", Body: `{"movie":1}`}, OriginClient)
		if err != nil {
			t.Fatal(err)
		}
		if a.ID <= last {
			t.Fatalf("id %d not greater than %d", a.ID, last)
		}
		if a.Method != http.MethodPost {
			t.Errorf("default method = %q", a.Method)
		}
		last = a.ID
	}

	got, err := q.Get(ctx, last)
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != `{"movie":1}` || got.CreatedAt.IsZero() {
		t.Errorf("stored action = %+v", got)
	}
}

func TestQueue_IDsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StorageConfig{SyncWrites: true, MemTableSize: 4 << 20, GCRatio: 0.5}
	ctx := context.Background()

	db, err := storage.Open("queue", filepath.Join(dir, "q"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueue(db)
	if err := q.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := q.Enqueue(ctx, Action{Type: TypeReview, URL: "/api/reviews"}, OriginClient)
	if err != nil {
		t.Fatal(err)
	}
	_ = q.Close()
	_ = db.Close()

	db, err = storage.Open("queue", filepath.Join(dir, "q"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	q = NewQueue(db)
	if err := q.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	second, err := q.Enqueue(ctx, Action{Type: TypeReview, URL: "/api/reviews"}, OriginClient)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID <= first.ID {
		t.Errorf("id after restart %d, before %d", second.ID, first.ID)
	}
	all, _ := q.All(ctx)
	if len(all) != 2 {
		t.Errorf("expected both actions to persist, got %d", len(all))
	}
}

func TestQueue_Validation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, Action{Type: TypeRating}, OriginClient); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("missing url: %v", err)
	}
	if _, err := q.Enqueue(ctx, Action{Type: "badge", URL: "/x"}, OriginClient); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type: %v", err)
	}
}

func TestQueue_ListByTypeKeepsInsertionOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	types := []string{TypeRating, TypeReview, TypeRating, TypeWatchlist, TypeRating}
	for i, typ := range types {
		body := string(rune('a' + i))
		if _, err := q.Enqueue(ctx, Action{Type: typ, URL: "/api/x", Body: body}, OriginClient); err != nil {
			t.Fatal(err)
		}
	}

	ratings, err := q.ListByType(ctx, TypeRating)
	if err != nil {
		t.Fatal(err)
	}
	var bodies string
	for _, a := range ratings {
		bodies += a.Body
	}
	if bodies != "ace" {
		t.Errorf("rating order = %q, want ace", bodies)
	}

	n, _ := q.Count(ctx)
	if n != 5 {
		t.Errorf("Count = %d", n)
	}
}

func TestQueue_Delete(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, Action{Type: TypeRating, URL: "/api/ratings"}, OriginClient)
	if err := q.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Get(ctx, a.ID); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	if err := q.Delete(ctx, a.ID); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestQueue_CachedData(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.GetData(ctx, "profile"); !errors.Is(err, ErrDataNotFound) {
		t.Errorf("missing key: %v", err)
	}
	if err := q.PutData(ctx, "profile", json.RawMessage(`{"name":"ana"}`)); err != nil {
		t.Fatal(err)
	}
	got, err := q.GetData(ctx, "profile")
	if err != nil || string(got) != `{"name":"ana"}` {
		t.Errorf("GetData = %s, %v", got, err)
	}
	if err := q.PutData(ctx, "bad", json.RawMessage(`{`)); !errors.Is(err, ErrInvalidData) {
		t.Error("invalid JSON should be rejected")
	}
	if err := q.PutData(ctx, "", json.RawMessage(`1`)); !errors.Is(err, ErrEmptyDataKey) {
		t.Errorf("empty key: %v", err)
	}
	if err := q.DeleteData(ctx, "profile"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.GetData(ctx, "profile"); !errors.Is(err, ErrDataNotFound) {
		t.Errorf("after delete: %v", err)
	}

	// Cached data never shows up as an action.
	if all, _ := q.All(ctx); len(all) != 0 {
		t.Errorf("actions = %d", len(all))
	}
}

func TestActionRequest(t *testing.T) {
	a := Action{ID: 7, Method: http.MethodPut, URL: "http://origin/api/ratings/3", Body: `{"stars":4}`,
		Headers: map[string]string{"Content-Type": "application/json", "Authorization": "Bearer x"}}
	req, err := a.Request(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != http.MethodPut || req.Header.Get("Authorization") != "Bearer x" {
		t.Errorf("request = %s %v", req.Method, req.Header)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"stars":4}` {
		t.Errorf("body = %q", body)
	}
}

// openClosedDB returns a database that is already closed.
func openClosedDB(t *testing.T) (*storage.DB, error) {
	t.Helper()
	db, err := storage.OpenInMemory("offline-closed")
	if err != nil {
		return nil, err
	}
	return db, db.Close()
}
