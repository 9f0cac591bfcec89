// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package cachestore

import (
	"context"
	"fmt"

	"github.com/tomtom215/cinescope/internal/metrics"
)

// Store is a handle to one named store. Handles are cheap; a store deleted
// while a handle is held is recreated by the next Put.
type Store struct {
	m    *Manager
	name string
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Match returns the snapshot stored under key.
func (s *Store) Match(ctx context.Context, key string) (*Snapshot, bool, error) {
	snap, ok, err := s.m.match(ctx, s.name, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(s.name, "error")
	case ok:
		metrics.RecordCacheLookup(s.name, "hit")
	default:
		metrics.RecordCacheLookup(s.name, "miss")
	}
	return snap, ok, err
}

// Put stores snap under its descriptor, replacing and re-appending any previous entry.
func (s *Store) Put(ctx context.Context, snap *Snapshot) error {
	err := s.m.put(ctx, s.name, snap)
	metrics.RecordCacheWrite(s.name, err)
	if err != nil {
		return fmt.Errorf("put into %s: %w", s.name, err)
	}
	return nil
}

// Delete removes the entry stored under key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	ok, err := s.m.deleteEntry(ctx, s.name, key)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", s.name, err)
	}
	return ok, nil
}

// Keys returns every descriptor in insertion order, oldest first.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	ordered, err := s.m.orderedKeys(ctx, s.name)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ordered))
	for i, k := range ordered {
		keys[i] = k.descriptor
	}
	return keys, nil
}

// Len returns the number of entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	ordered, err := s.m.orderedKeys(ctx, s.name)
	if err != nil {
		return 0, err
	}
	return len(ordered), nil
}

// Evict trims the store to max entries. See Manager.Evict.
func (s *Store) Evict(ctx context.Context, max int) (EvictResult, error) {
	return s.m.Evict(ctx, s.name, max)
}
