// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

// Package cachestore implements named, versioned response stores on BadgerDB.
//
// Key layout inside the cache database:
//
//	store:<name>                 registry entry (creation time)
//	entry:<name>\x00<descriptor> entryRecord (order sequence + snapshot)
//	order:<name>\x00<seq>        descriptor, seq is big-endian so iteration is insertion order
//
// Every write takes a fresh number from one Badger sequence, so the order
// index of a store always enumerates entries oldest first. Overwriting an
// entry moves it to the end.
package cachestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
	"github.com/tomtom215/cinescope/internal/storage"
)

const (
	prefixStore = "store:"
	prefixEntry = "entry:"
	prefixOrder = "order:"

	sep = 0x00

	orderSequenceKey  = "meta:order-seq"
	sequenceBandwidth = 128

	// maxConflictRetries bounds retries of a transaction that lost a race on
	// the same entry. Last write wins; the loser only needs a fresh read.
	maxConflictRetries = 5
)

var (
	// ErrStoreNotFound is returned when a named store does not exist.
	ErrStoreNotFound = errors.New("cache store not found")

	// ErrEmptyStoreName is returned for a blank store name.
	ErrEmptyStoreName = errors.New("cache store name cannot be empty")

	// ErrInvalidSnapshot is returned by Put for snapshots without a URL.
	ErrInvalidSnapshot = errors.New("snapshot must have a URL")
)

type entryRecord struct {
	Seq      uint64    `json:"seq"`
	Snapshot *Snapshot `json:"snapshot"`
}

type storeRecord struct {
	CreatedAt time.Time `json:"created_at"`
}

// Manager owns every named store in one Badger database.
type Manager struct {
	db  *storage.DB
	seq *badger.Sequence
	now func() time.Time
	log zerolog.Logger
}

// NewManager creates a manager over db.
func NewManager(db *storage.DB) (*Manager, error) {
	bdb, err := db.Badger()
	if err != nil {
		return nil, err
	}
	seq, err := bdb.GetSequence([]byte(orderSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("open order sequence: %w", err)
	}
	return &Manager{
		db:  db,
		seq: seq,
		now: time.Now,
		log: logging.WithComponent("cachestore"),
	}, nil
}

// Close releases the leased sequence range. The database itself is closed by its owner.
func (m *Manager) Close() error {
	if err := m.seq.Release(); err != nil {
		return fmt.Errorf("release order sequence: %w", err)
	}
	return nil
}

// Open returns a handle to the named store, creating it if it does not exist.
func (m *Manager) Open(ctx context.Context, name string) (*Store, error) {
	if name == "" {
		return nil, ErrEmptyStoreName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := m.update(func(txn *badger.Txn) error {
		return m.ensureStore(txn, name)
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", name, err)
	}
	return &Store{m: m, name: name}, nil
}

// Has reports whether the named store exists.
func (m *Manager) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	bdb, err := m.db.Badger()
	if err != nil {
		return false, err
	}
	found := false
	err = bdb.View(func(txn *badger.Txn) error {
		_, err := txn.Get(storeKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Names returns all store names in lexical order.
func (m *Manager) Names(ctx context.Context) ([]string, error) {
	bdb, err := m.db.Badger()
	if err != nil {
		return nil, err
	}

	var names []string
	err = bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixStore)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			names = append(names, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named store and every entry in it. It reports whether
// the store existed.
func (m *Manager) Delete(ctx context.Context, name string) (bool, error) {
	existed, err := m.Has(ctx, name)
	if err != nil {
		return false, err
	}

	bdb, err := m.db.Badger()
	if err != nil {
		return false, err
	}

	keys, err := m.collectKeys(ctx, bdb, entryPrefix(name), orderPrefix(name))
	if err != nil {
		return false, fmt.Errorf("delete store %s: %w", name, err)
	}
	keys = append(keys, storeKey(name))

	wb := bdb.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return false, fmt.Errorf("delete store %s: %w", name, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return false, fmt.Errorf("delete store %s: %w", name, err)
	}

	metrics.CacheEntries.DeleteLabelValues(name)
	m.log.Debug().Str("store", name).Int("keys", len(keys)).Bool("existed", existed).Msg("store deleted")
	return existed, nil
}

// DeleteAll removes every store and returns the names that were deleted.
func (m *Manager) DeleteAll(ctx context.Context) ([]string, error) {
	names, err := m.Names(ctx)
	if err != nil {
		return nil, err
	}
	deleted := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := m.Delete(ctx, name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// MatchAny looks the descriptor up in every store, in lexical store order,
// and returns the first hit.
func (m *Manager) MatchAny(ctx context.Context, key string) (*Snapshot, bool, error) {
	names, err := m.Names(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		snap, ok, err := m.match(ctx, name, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return snap, true, nil
		}
	}
	return nil, false, nil
}

func (m *Manager) match(ctx context.Context, name, key string) (*Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	bdb, err := m.db.Badger()
	if err != nil {
		return nil, false, err
	}

	var rec entryRecord
	found := false
	err = bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(name, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("match %s in %s: %w", key, name, err)
	}
	if !found || rec.Snapshot == nil {
		return nil, false, nil
	}
	return rec.Snapshot, true, nil
}

func (m *Manager) put(ctx context.Context, name string, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil || snap.URL == "" {
		return ErrInvalidSnapshot
	}
	if snap.StoredAt.IsZero() {
		snap.StoredAt = m.now().UTC()
	}
	key := snap.Key()

	return m.update(func(txn *badger.Txn) error {
		if err := m.ensureStore(txn, name); err != nil {
			return err
		}

		ek := entryKey(name, key)
		item, err := txn.Get(ek)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var old entryRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &old) }); err != nil {
				return err
			}
			if err := txn.Delete(orderKey(name, old.Seq)); err != nil {
				return err
			}
		}

		seq, err := m.seq.Next()
		if err != nil {
			return fmt.Errorf("next order sequence: %w", err)
		}
		data, err := json.Marshal(entryRecord{Seq: seq, Snapshot: snap})
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if err := txn.Set(ek, data); err != nil {
			return err
		}
		return txn.Set(orderKey(name, seq), []byte(key))
	})
}

func (m *Manager) deleteEntry(ctx context.Context, name, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted := false
	err := m.update(func(txn *badger.Txn) error {
		deleted = false
		ek := entryKey(name, key)
		item, err := txn.Get(ek)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec entryRecord
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return err
		}
		if err := txn.Delete(ek); err != nil {
			return err
		}
		deleted = true
		return txn.Delete(orderKey(name, rec.Seq))
	})
	return deleted, err
}

// orderedKeys returns descriptors of a store oldest first, with their order sequences.
func (m *Manager) orderedKeys(ctx context.Context, name string) ([]orderedKey, error) {
	bdb, err := m.db.Badger()
	if err != nil {
		return nil, err
	}

	var keys []orderedKey
	err = bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = orderPrefix(name)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			k := item.Key()
			seq := binary.BigEndian.Uint64(k[len(k)-8:])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keys = append(keys, orderedKey{seq: seq, descriptor: string(val)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", name, err)
	}
	return keys, nil
}

type orderedKey struct {
	seq        uint64
	descriptor string
}

func (m *Manager) ensureStore(txn *badger.Txn, name string) error {
	_, err := txn.Get(storeKey(name))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	data, err := json.Marshal(storeRecord{CreatedAt: m.now().UTC()})
	if err != nil {
		return err
	}
	return txn.Set(storeKey(name), data)
}

func (m *Manager) collectKeys(ctx context.Context, bdb *badger.DB, prefixes ...[]byte) ([][]byte, error) {
	var keys [][]byte
	err := bdb.View(func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		return nil
	})
	return keys, err
}

// update runs fn in a read-write transaction, retrying on conflict.
func (m *Manager) update(fn func(txn *badger.Txn) error) error {
	bdb, err := m.db.Badger()
	if err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		err = bdb.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
	}
}

func storeKey(name string) []byte {
	return []byte(prefixStore + name)
}

func entryPrefix(name string) []byte {
	return append([]byte(prefixEntry+name), sep)
}

func entryKey(name, descriptor string) []byte {
	return append(entryPrefix(name), descriptor...)
}

func orderPrefix(name string) []byte {
	return append([]byte(prefixOrder+name), sep)
}

func orderKey(name string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(orderPrefix(name), seq)
}
