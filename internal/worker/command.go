// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
	"github.com/tomtom215/cinescope/internal/validation"
)

// Command types accepted on the control channel.
const (
	CommandSkipWaiting = "SKIP_WAITING"
	CommandCacheURLs   = "CACHE_URLS"
	CommandClearCache  = "CLEAR_CACHE"
)

// ErrInvalidCommand wraps decode and validation failures.
var ErrInvalidCommand = errors.New("worker: invalid command")

// Command is a control message from a page.
type Command struct {
	Type string   `json:"type" validate:"required,oneof=SKIP_WAITING CACHE_URLS CLEAR_CACHE"`
	URLs []string `json:"urls,omitempty" validate:"required_if=Type CACHE_URLS,max=500,dive,fetchurl"`
}

// ParseCommand decodes and validates a command. Validation failures are
// returned as *validation.RequestValidationError wrapped in ErrInvalidCommand.
func (w *Worker) ParseCommand(ctx context.Context, raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := w.validate(ctx, &cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// validate checks s with absolute URLs limited to the worker's hosts.
func (w *Worker) validate(ctx context.Context, s interface{}) error {
	ctx = validation.WithHostAllower(ctx, w.deps.Hosts)
	if verr := validation.ValidateStructCtx(ctx, s); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, verr)
	}
	return nil
}

// Message runs a command. Commands are fire-and-forget: Message returns as
// soon as the work is scheduled and the outcome is only logged.
func (w *Worker) Message(ctx context.Context, cmd Command) error {
	if err := w.validate(ctx, &cmd); err != nil {
		return err
	}
	metrics.RecordWorkerEvent("message", nil)

	tasks := w.deps.Strategy.Tasks
	log := logging.Ctx(ctx).With().Str("command", cmd.Type).Logger()

	switch cmd.Type {
	case CommandSkipWaiting:
		tasks.Go(ctx, func(ctx context.Context) {
			if err := w.SkipWaiting(ctx); err != nil {
				log.Warn().Err(err).Msg("Skip waiting failed")
			}
		})

	case CommandCacheURLs:
		urls := append([]string(nil), cmd.URLs...)
		tasks.Go(ctx, func(ctx context.Context) {
			store, err := w.deps.Manager.Open(ctx, w.names.Runtime())
			if err == nil {
				err = w.precache(ctx, store, urls)
			}
			if err != nil {
				log.Warn().Err(err).Int("urls", len(urls)).Msg("Bulk precache failed")
			}
		})

	case CommandClearCache:
		tasks.Go(ctx, func(ctx context.Context) {
			if _, err := w.ClearCache(ctx); err != nil {
				log.Warn().Err(err).Msg("Clear cache failed")
			}
		})
	}
	return nil
}

// ClearCache deletes every store regardless of version.
func (w *Worker) ClearCache(ctx context.Context) ([]string, error) {
	deleted, err := w.deps.Manager.DeleteAll(ctx)
	if err != nil {
		return deleted, err
	}
	metrics.CacheStoresPurged.Add(float64(len(deleted)))
	logging.Info().Strs("stores", deleted).Msg("All cache stores cleared")
	w.deps.Notifier.BroadcastJSON(MessageCacheCleared, map[string]int{"stores": len(deleted)})
	return deleted, nil
}
