// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/fetch"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
)

// Sync tags.
const (
	TagRatings   = "sync-ratings"
	TagWatchlist = "sync-watchlist"
	TagReviews   = "sync-reviews"
)

var tagTypes = map[string]string{
	TagRatings:   TypeRating,
	TagWatchlist: TypeWatchlist,
	TagReviews:   TypeReview,
}

// Tags returns every sync tag in a stable order.
func Tags() []string {
	tags := make([]string, 0, len(tagTypes))
	for tag := range tagTypes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// TypeForTag returns the action type drained by tag.
func TypeForTag(tag string) (string, error) {
	t, ok := tagTypes[tag]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSyncTag, tag)
	}
	return t, nil
}

// SyncResult summarizes one drain.
type SyncResult struct {
	Tag       string `json:"tag"`
	Type      string `json:"type"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Retained  int    `json:"retained"`
}

// Syncer replays queued actions against the origin. Drains of the same tag
// run one at a time; different tags drain concurrently.
type Syncer struct {
	queue   *Queue
	fetcher fetch.Fetcher
	limiter *rate.Limiter
	timeout time.Duration
	drains  map[string]chan struct{}
}

// NewSyncer creates a syncer that replays through f, paced by cfg.ReplayRate.
func NewSyncer(q *Queue, f fetch.Fetcher, cfg config.QueueConfig) *Syncer {
	limit := rate.Limit(cfg.ReplayRate)
	if cfg.ReplayRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.ReplayBurst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.ReplayTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	drains := make(map[string]chan struct{}, len(tagTypes))
	for tag := range tagTypes {
		drains[tag] = make(chan struct{}, 1)
	}
	return &Syncer{
		queue:   q,
		fetcher: f,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		drains:  drains,
	}
}

// Sync drains the actions selected by tag. A failure to read the queue aborts
// the drain and leaves everything queued; a failed replay only retains that
// one action.
func (s *Syncer) Sync(ctx context.Context, tag string) (SyncResult, error) {
	actionType, err := TypeForTag(tag)
	if err != nil {
		return SyncResult{Tag: tag}, err
	}
	result := SyncResult{Tag: tag, Type: actionType}

	drain := s.drains[tag]
	select {
	case drain <- struct{}{}:
		defer func() { <-drain }()
	case <-ctx.Done():
		return result, fmt.Errorf("sync %s: %w", tag, ctx.Err())
	}
	start := time.Now()

	actions, err := s.queue.ListByType(ctx, actionType)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("tag", tag).Msg("Sync aborted: queue unavailable")
		return result, fmt.Errorf("sync %s: %w", tag, err)
	}

	for _, a := range actions {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("sync %s: %w", tag, err)
		}
		result.Attempted++

		if err := s.replay(ctx, a); err != nil {
			result.Retained++
			metrics.RecordReplay(tag, false)
			logging.Ctx(ctx).Warn().
				Err(err).
				Uint64("action_id", a.ID).
				Str("tag", tag).
				Int("attempts", a.Attempts+1).
				Msg("Replay failed, action retained")
			if recErr := s.queue.recordAttempt(ctx, a.ID, err.Error()); recErr != nil {
				logging.Ctx(ctx).Warn().Err(recErr).Uint64("action_id", a.ID).Msg("Failed to record replay attempt")
			}
			continue
		}

		err := s.queue.Delete(ctx, a.ID)
		if errors.Is(err, ErrActionNotFound) {
			// Removed while it was in flight; the origin has it.
			logging.Ctx(ctx).Debug().Uint64("action_id", a.ID).Str("tag", tag).Msg("Delivered action already gone from the queue")
			err = nil
		}
		if err != nil {
			// Delivered but still queued: it will be replayed again.
			result.Retained++
			metrics.RecordReplay(tag, false)
			logging.Ctx(ctx).Error().Err(err).Uint64("action_id", a.ID).Msg("Failed to delete delivered action")
			continue
		}
		result.Delivered++
		metrics.RecordReplay(tag, true)
	}

	metrics.RecordSyncRun(tag, time.Since(start))
	if result.Attempted > 0 {
		logging.Ctx(ctx).Info().
			Str("tag", tag).
			Int("delivered", result.Delivered).
			Int("retained", result.Retained).
			Msg("Sync complete")
	}
	return result, nil
}

func (s *Syncer) replay(ctx context.Context, a *Action) error {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := a.Request(rctx)
	if err != nil {
		return err
	}
	resp, err := s.fetcher.Fetch(rctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("origin answered %d", resp.StatusCode)
	}
	return nil
}
