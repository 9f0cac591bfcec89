// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package cachestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
)

// EvictResult describes one trim pass.
type EvictResult struct {
	Store     string `json:"store"`
	Max       int    `json:"max"`
	Before    int    `json:"before"`
	Removed   int    `json:"removed"`
	Remaining int    `json:"remaining"`
}

// EvictionSink receives the outcome of background trim passes.
type EvictionSink interface {
	EvictionDone(ctx context.Context, result EvictResult, err error)
}

// Evict trims the named store to at most max entries by deleting the oldest
// ones in insertion order. Access recency and expiry are not considered.
// Evicting a store that is already within max deletes nothing.
func (m *Manager) Evict(ctx context.Context, name string, max int) (EvictResult, error) {
	result := EvictResult{Store: name, Max: max}
	if max < 0 {
		return result, fmt.Errorf("evict %s: negative max %d", name, max)
	}

	ordered, err := m.orderedKeys(ctx, name)
	if err != nil {
		return result, fmt.Errorf("evict %s: %w", name, err)
	}
	result.Before = len(ordered)
	result.Remaining = len(ordered)
	if len(ordered) <= max {
		return result, nil
	}

	victims := ordered[:len(ordered)-max]
	removed := 0
	err = m.update(func(txn *badger.Txn) error {
		removed = 0
		for _, v := range victims {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := txn.Delete(orderKey(name, v.seq)); err != nil {
				return err
			}
			// The entry may have been overwritten since the listing; only
			// delete it if it still points at this order slot.
			ek := entryKey(name, v.descriptor)
			item, err := txn.Get(ek)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var rec entryRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if rec.Seq != v.seq {
				continue
			}
			if err := txn.Delete(ek); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("evict %s: %w", name, err)
	}

	result.Removed = removed
	result.Remaining = result.Before - removed
	return result, nil
}

// LogSink records eviction outcomes in logs and metrics.
type LogSink struct{}

// EvictionDone implements EvictionSink.
func (LogSink) EvictionDone(ctx context.Context, result EvictResult, err error) {
	metrics.RecordEviction(result.Store, result.Removed, result.Remaining, err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("store", result.Store).Msg("cache eviction failed")
		return
	}
	if result.Removed > 0 {
		logging.Ctx(ctx).Debug().
			Str("store", result.Store).
			Int("removed", result.Removed).
			Int("remaining", result.Remaining).
			Int("max", result.Max).
			Msg("cache store trimmed")
	}
}
