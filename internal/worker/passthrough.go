// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/fetch"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/offline"
)

// maxCapturedBody bounds the request body kept for a captured mutation.
const maxCapturedBody = 1 << 20

// replayHeaders are copied onto a captured action.
var replayHeaders = []string{
	"Content-Type",
	"Accept",
	"Authorization",
	"Cookie",
	"X-CSRF-Token",
	"X-Requested-With",
}

// passThrough sends a non-GET request to the network unmodified. When
// capture is enabled and the path maps to an action type, a network failure
// queues the request and answers 202 instead.
func (w *Worker) passThrough(ctx context.Context, r *http.Request) (*http.Response, error) {
	actionType, ok := w.captureType(r)
	if !ok {
		return w.deps.Fetcher.Fetch(ctx, r)
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxCapturedBody+1))
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(body) > maxCapturedBody {
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
			return w.deps.Fetcher.Fetch(ctx, r)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := w.deps.Fetcher.Fetch(ctx, r)
	if err == nil || !errors.Is(err, fetch.ErrNetwork) {
		return resp, err
	}

	headers := make(map[string]string)
	for _, h := range replayHeaders {
		if v := r.Header.Get(h); v != "" {
			headers[h] = v
		}
	}
	action, qerr := w.deps.Queue.Enqueue(ctx, offline.Action{
		Type:    actionType,
		URL:     r.URL.String(),
		Method:  r.Method,
		Headers: headers,
		Body:    string(body),
	}, offline.OriginCaptured)
	if qerr != nil {
		logging.Ctx(ctx).Warn().Err(qerr).Str("url", r.URL.String()).Msg("Failed to queue mutation")
		return nil, err
	}
	return queuedResponse(r, &action)
}

// captureType returns the action type for r's path, preferring the longest
// matching prefix.
func (w *Worker) captureType(r *http.Request) (string, bool) {
	if !w.queueCfg.CaptureFailedMutations || w.deps.Queue == nil {
		return "", false
	}
	best, bestType := "", ""
	for prefix, actionType := range w.capture {
		if strings.HasPrefix(r.URL.Path, prefix) && len(prefix) > len(best) {
			best, bestType = prefix, actionType
		}
	}
	return bestType, best != ""
}

type queuedBody struct {
	Queued bool   `json:"queued"`
	ID     uint64 `json:"id"`
	Type   string `json:"type"`
	Tag    string `json:"tag"`
}

func queuedResponse(r *http.Request, a *offline.Action) (*http.Response, error) {
	tag := ""
	for _, t := range offline.Tags() {
		if typ, _ := offline.TypeForTag(t); typ == a.Type {
			tag = t
		}
	}
	body, err := json.Marshal(queuedBody{Queued: true, ID: a.ID, Type: a.Type, Tag: tag})
	if err != nil {
		return nil, err
	}
	snap := &cachestore.Snapshot{
		Method:   r.Method,
		URL:      r.URL.String(),
		Status:   http.StatusAccepted,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     body,
		StoredAt: time.Now().UTC(),
	}
	resp := snap.Response(r)
	resp.Header.Set(HeaderCacheSource, "queued")
	return resp, nil
}
