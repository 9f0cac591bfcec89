// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package offline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
	"github.com/tomtom215/cinescope/internal/storage"
)

// Table names.
const (
	TablePendingActions = "pending-actions"
	TableCachedData     = "cached-data"
)

// Action types.
const (
	TypeRating    = "rating"
	TypeWatchlist = "watchlist"
	TypeReview    = "review"
)

// Origins of an enqueued action, used as a metric label.
const (
	OriginClient   = "client"
	OriginCaptured = "captured"
)

const (
	schemaVersion     = 1
	idSequenceKey     = "meta:action-id"
	sequenceBandwidth = 64
	prefixTable       = "table:"
)

var (
	ErrNotMigrated     = errors.New("offline: tables not migrated")
	ErrActionNotFound  = errors.New("offline: action not found")
	ErrDataNotFound    = errors.New("offline: cached data not found")
	ErrInvalidAction   = errors.New("offline: invalid action")
	ErrEmptyDataKey    = errors.New("offline: empty cached data key")
	ErrInvalidData     = errors.New("offline: cached data is not valid JSON")
	ErrUnknownSyncTag  = errors.New("offline: unknown sync tag")
	ErrUnknownType     = errors.New("offline: unknown action type")
	errSchemaTooRecent = errors.New("offline: schema version is newer than this build")
)

var knownTypes = map[string]bool{
	TypeRating:    true,
	TypeWatchlist: true,
	TypeReview:    true,
}

// Action is a queued mutating request.
type Action struct {
	ID      uint64            `json:"id"`
	Type    string            `json:"type" validate:"required,oneof=rating watchlist review"`
	URL     string            `json:"url" validate:"required"`
	Method  string            `json:"method" validate:"omitempty,oneof=POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Request rebuilds the HTTP request the action was queued for.
func (a *Action) Request(ctx context.Context) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if a.Body != "" {
		body = strings.NewReader(a.Body)
	}
	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request for action %d: %w", a.ID, err)
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

type tableRecord struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue is the durable store behind pending actions and cached data.
type Queue struct {
	db  *storage.DB
	now func() time.Time

	mu  sync.RWMutex
	seq *badger.Sequence
}

// NewQueue wraps db. Migrate must run before the queue is used.
func NewQueue(db *storage.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// Migrate creates both tables if missing and leases the ID sequence. It is
// safe to call more than once.
func (q *Queue) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bdb, err := q.db.Badger()
	if err != nil {
		return err
	}

	err = bdb.Update(func(txn *badger.Txn) error {
		for _, table := range []string{TablePendingActions, TableCachedData} {
			key := []byte(prefixTable + table)
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				data, err := json.Marshal(tableRecord{Version: schemaVersion, CreatedAt: q.now().UTC()})
				if err != nil {
					return err
				}
				if err := txn.Set(key, data); err != nil {
					return err
				}
				logging.Info().Str("table", table).Int("version", schemaVersion).Msg("Offline table created")
			case err != nil:
				return err
			default:
				var rec tableRecord
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
					return fmt.Errorf("read table %s: %w", table, err)
				}
				if rec.Version > schemaVersion {
					return fmt.Errorf("%w: %s is at %d", errSchemaTooRecent, table, rec.Version)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate offline tables: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seq == nil {
		seq, err := bdb.GetSequence([]byte(idSequenceKey), sequenceBandwidth)
		if err != nil {
			return fmt.Errorf("open action id sequence: %w", err)
		}
		q.seq = seq
	}
	q.refreshGauge(ctx)
	return nil
}

// Close releases the ID sequence. The database is closed by its owner.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seq == nil {
		return nil
	}
	err := q.seq.Release()
	q.seq = nil
	if err != nil {
		return fmt.Errorf("release action id sequence: %w", err)
	}
	return nil
}

func (q *Queue) ready() (*badger.DB, error) {
	q.mu.RLock()
	migrated := q.seq != nil
	q.mu.RUnlock()
	if !migrated {
		return nil, ErrNotMigrated
	}
	return q.db.Badger()
}

// Enqueue assigns the next ID and stores a.
func (q *Queue) Enqueue(ctx context.Context, a Action, origin string) (Action, error) {
	if err := ctx.Err(); err != nil {
		return Action{}, err
	}
	bdb, err := q.ready()
	if err != nil {
		return Action{}, err
	}
	if a.URL == "" {
		return Action{}, fmt.Errorf("%w: url is required", ErrInvalidAction)
	}
	if !knownTypes[a.Type] {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownType, a.Type)
	}
	if a.Method == "" {
		a.Method = http.MethodPost
	}
	a.Method = strings.ToUpper(a.Method)

	q.mu.RLock()
	next, err := q.seq.Next()
	q.mu.RUnlock()
	if err != nil {
		return Action{}, fmt.Errorf("next action id: %w", err)
	}
	// Sequences start at zero; IDs start at one.
	a.ID = next + 1
	a.CreatedAt = q.now().UTC()
	a.Attempts = 0
	a.LastError = ""
	a.LastAttemptAt = time.Time{}

	data, err := json.Marshal(&a)
	if err != nil {
		return Action{}, fmt.Errorf("marshal action: %w", err)
	}
	if err := bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(actionKey(a.ID), data)
	}); err != nil {
		return Action{}, fmt.Errorf("store action: %w", err)
	}

	metrics.ActionsEnqueued.WithLabelValues(a.Type, origin).Inc()
	metrics.PendingActions.Inc()
	logging.Ctx(ctx).Info().
		Uint64("action_id", a.ID).
		Str("type", a.Type).
		Str("method", a.Method).
		Str("url", a.URL).
		Str("origin", origin).
		Msg("Action queued")
	return a, nil
}

// Get returns one action.
func (q *Queue) Get(ctx context.Context, id uint64) (*Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bdb, err := q.ready()
	if err != nil {
		return nil, err
	}
	var a Action
	err = bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(actionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrActionNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &a) })
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Delete removes an action. Deleting a missing action returns ErrActionNotFound.
func (q *Queue) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bdb, err := q.ready()
	if err != nil {
		return err
	}
	err = bdb.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(actionKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrActionNotFound
			}
			return err
		}
		return txn.Delete(actionKey(id))
	})
	if err != nil {
		return err
	}
	metrics.PendingActions.Dec()
	return nil
}

// All returns every pending action in insertion order.
func (q *Queue) All(ctx context.Context) ([]*Action, error) {
	return q.list(ctx, func(*Action) bool { return true })
}

// ListByType returns the pending actions of one type in insertion order.
func (q *Queue) ListByType(ctx context.Context, actionType string) ([]*Action, error) {
	return q.list(ctx, func(a *Action) bool { return a.Type == actionType })
}

// Count returns the number of pending actions.
func (q *Queue) Count(ctx context.Context) (int, error) {
	bdb, err := q.ready()
	if err != nil {
		return 0, err
	}
	n := 0
	err = bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = actionPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (q *Queue) list(ctx context.Context, keep func(*Action) bool) ([]*Action, error) {
	bdb, err := q.ready()
	if err != nil {
		return nil, err
	}
	var actions []*Action
	err = bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = actionPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var a Action
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &a) }); err != nil {
				logging.Warn().Err(err).Str("key", fmt.Sprintf("%x", item.Key())).Msg("Skipping unreadable action")
				continue
			}
			if keep(&a) {
				actions = append(actions, &a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending actions: %w", err)
	}
	return actions, nil
}

// recordAttempt stores the outcome of a failed replay on the action.
func (q *Queue) recordAttempt(ctx context.Context, id uint64, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bdb, err := q.ready()
	if err != nil {
		return err
	}
	return bdb.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(actionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrActionNotFound
		}
		if err != nil {
			return err
		}
		var a Action
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &a) }); err != nil {
			return fmt.Errorf("unmarshal action: %w", err)
		}
		a.Attempts++
		a.LastAttemptAt = q.now().UTC()
		a.LastError = lastError
		data, err := json.Marshal(&a)
		if err != nil {
			return fmt.Errorf("marshal action: %w", err)
		}
		return txn.Set(actionKey(id), data)
	})
}

func (q *Queue) refreshGauge(ctx context.Context) {
	bdb, err := q.db.Badger()
	if err != nil {
		return
	}
	n := 0
	_ = bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = actionPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && ctx.Err() == nil; it.Next() {
			n++
		}
		return nil
	})
	metrics.PendingActions.Set(float64(n))
}

// PutData stores value under key in the cached-data table.
func (q *Queue) PutData(ctx context.Context, key string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyDataKey
	}
	bdb, err := q.ready()
	if err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: key %q", ErrInvalidData, key)
	}
	return bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(dataKey(key), append([]byte(nil), value...))
	})
}

// GetData returns the value stored under key.
func (q *Queue) GetData(ctx context.Context, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyDataKey
	}
	bdb, err := q.ready()
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	err = bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrDataNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteData removes key. Deleting a missing key is not an error.
func (q *Queue) DeleteData(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyDataKey
	}
	bdb, err := q.ready()
	if err != nil {
		return err
	}
	return bdb.Update(func(txn *badger.Txn) error {
		return txn.Delete(dataKey(key))
	})
}

func actionPrefix() []byte {
	return []byte(TablePendingActions + ":")
}

func actionKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(actionPrefix(), id)
}

func dataKey(key string) []byte {
	return []byte(TableCachedData + ":" + key)
}
