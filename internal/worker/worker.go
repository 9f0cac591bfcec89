// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package worker is the lifecycle object of the edge. It exposes one method per
event the browser would deliver to a service worker:

	Install            precache the manifest into the static store
	Activate           purge stores from other versions, claim clients
	Fetch              route an intercepted request through a caching strategy
	Sync               drain pending actions for a sync tag
	Push               turn a push payload into a notification
	NotificationClick  react to a notification action
	Message            run a control command

The HTTP and websocket layers only translate wire formats into these calls.
*/
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/fetch"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
	"github.com/tomtom215/cinescope/internal/offline"
	"github.com/tomtom215/cinescope/internal/router"
	"github.com/tomtom215/cinescope/internal/strategy"
)

// State is the lifecycle state.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

var allStates = []string{
	string(StateParsed), string(StateInstalling), string(StateWaiting),
	string(StateActivating), string(StateActive), string(StateRedundant),
}

// Broadcast message types sent to connected pages.
const (
	MessageControllerChanged = "controller_changed"
	MessageNotification      = "notification"
	MessageOpenWindow        = "open_window"
	MessageSyncCompleted     = "sync_completed"
	MessageCacheCleared      = "cache_cleared"
)

var (
	ErrNotInstalled  = errors.New("worker: not installed")
	ErrInstallFailed = errors.New("worker: install failed")
)

// Notifier delivers messages to every connected page.
type Notifier interface {
	BroadcastJSON(messageType string, data interface{})
}

type nopNotifier struct{}

func (nopNotifier) BroadcastJSON(string, interface{}) {}

// Deps are the collaborators of a Worker. Hosts limits the absolute URLs
// the worker accepts; its zero value accepts origin-relative URLs only.
type Deps struct {
	Manager  *cachestore.Manager
	Strategy *strategy.Deps
	Fetcher  fetch.Fetcher
	Queue    *offline.Queue
	Syncer   *offline.Syncer
	Notifier Notifier
	Hosts    fetch.HostPolicy
}

// Worker handles lifecycle, fetch, sync, push and command events.
type Worker struct {
	cfg      config.CacheConfig
	queueCfg config.QueueConfig
	names    cachestore.Names
	deps     Deps
	router   *router.Router
	capture  map[string]string

	mu          sync.RWMutex
	state       State
	installedAt time.Time
	activatedAt time.Time
}

// New creates a worker in the parsed state.
func New(cfg config.CacheConfig, queueCfg config.QueueConfig, deps Deps) *Worker {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	names := cachestore.Names{Prefix: cfg.Prefix, Version: cfg.Version}
	w := &Worker{
		cfg:      cfg,
		queueCfg: queueCfg,
		names:    names,
		deps:     deps,
		router:   router.New(cfg, names, deps.Strategy),
		capture:  queueCfg.CaptureRouteMap(),
		state:    StateParsed,
	}
	metrics.SetWorkerState(string(StateParsed), allStates)
	return w
}

// Hosts returns the hosts the worker fetches from.
func (w *Worker) Hosts() fetch.HostPolicy { return w.deps.Hosts }

// Names returns the store names of this worker's version.
func (w *Worker) Names() cachestore.Names { return w.names }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Status is a snapshot of the worker for diagnostics.
type Status struct {
	State       State     `json:"state"`
	Version     string    `json:"version"`
	Stores      []string  `json:"stores"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// Status reports state, version and the stores that currently exist.
func (w *Worker) Status(ctx context.Context) (Status, error) {
	names, err := w.deps.Manager.Names(ctx)
	if err != nil {
		return Status{}, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{
		State:       w.state,
		Version:     w.cfg.Version,
		Stores:      names,
		InstalledAt: w.installedAt,
		ActivatedAt: w.activatedAt,
	}, nil
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.swapLocked(s)
	w.mu.Unlock()
	w.logTransition(prev, s)
}

// transition moves to s only from one of the given states.
func (w *Worker) transition(s State, from ...State) bool {
	w.mu.Lock()
	for _, f := range from {
		if w.state == f {
			prev := w.swapLocked(s)
			w.mu.Unlock()
			w.logTransition(prev, s)
			return true
		}
	}
	w.mu.Unlock()
	return false
}

func (w *Worker) swapLocked(s State) State {
	prev := w.state
	w.state = s
	switch s {
	case StateWaiting:
		w.installedAt = time.Now().UTC()
	case StateActive:
		w.activatedAt = time.Now().UTC()
	}
	return prev
}

func (w *Worker) logTransition(prev, s State) {
	metrics.SetWorkerState(string(s), allStates)
	logging.Info().
		Str("from", string(prev)).
		Str("to", string(s)).
		Str("version", w.cfg.Version).
		Msg("Worker state changed")
}

// Install precaches the manifest into the static store and then asks to be
// activated without waiting. A failed manifest entry fails the whole install
// and leaves the worker redundant with no static store.
func (w *Worker) Install(ctx context.Context) (err error) {
	defer func() { metrics.RecordWorkerEvent("install", err) }()

	if !w.transition(StateInstalling, StateParsed, StateRedundant) {
		logging.Debug().Str("state", string(w.State())).Msg("Install skipped, already installed")
		return nil
	}

	static, err := w.deps.Manager.Open(ctx, w.names.Static())
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("%w: open static store: %v", ErrInstallFailed, err)
	}
	if err := w.precache(ctx, static, w.cfg.PrecacheURLs); err != nil {
		if _, derr := w.deps.Manager.Delete(ctx, static.Name()); derr != nil {
			logging.Warn().Err(derr).Str("store", static.Name()).Msg("Failed to drop static store after failed install")
		}
		w.setState(StateRedundant)
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	w.setState(StateWaiting)
	return w.SkipWaiting(ctx)
}

// SkipWaiting activates a waiting worker. In any other state it does nothing.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	if w.State() != StateWaiting {
		return nil
	}
	_, err := w.Activate(ctx)
	return err
}

// Activate deletes every store whose name does not carry the current version
// tag, then claims all clients. It returns the purged store names.
func (w *Worker) Activate(ctx context.Context) (purged []string, err error) {
	defer func() { metrics.RecordWorkerEvent("activate", err) }()

	if !w.transition(StateActivating, StateWaiting) {
		switch w.State() {
		case StateActive, StateActivating:
			return nil, nil
		default:
			return nil, ErrNotInstalled
		}
	}

	names, err := w.deps.Manager.Names(ctx)
	if err != nil {
		w.setState(StateWaiting)
		return nil, fmt.Errorf("list stores: %w", err)
	}
	for _, name := range names {
		if w.names.IsCurrent(name) {
			continue
		}
		if _, err := w.deps.Manager.Delete(ctx, name); err != nil {
			w.setState(StateWaiting)
			return purged, fmt.Errorf("purge store %s: %w", name, err)
		}
		metrics.CacheStoresPurged.Inc()
		purged = append(purged, name)
	}

	w.setState(StateActive)
	if len(purged) > 0 {
		logging.Info().Strs("stores", purged).Str("version", w.cfg.Version).Msg("Purged stores from previous versions")
	}

	w.deps.Notifier.BroadcastJSON(MessageControllerChanged, map[string]string{"version": w.cfg.Version})
	return purged, nil
}

// Wait blocks until background strategy work has finished.
func (w *Worker) Wait() {
	if w.deps.Strategy != nil && w.deps.Strategy.Tasks != nil {
		w.deps.Strategy.Tasks.Wait()
	}
}

// Fetch answers r. GET requests go through the strategy chosen by the
// router once the worker is active; everything else goes to the network
// untouched. Absolute URLs on hosts outside Deps.Hosts are refused with
// fetch.ErrHostNotAllowed before anything is fetched. The returned response
// always has a body the caller must close.
func (w *Worker) Fetch(ctx context.Context, r *http.Request) (resp *http.Response, err error) {
	if err := w.deps.Hosts.Check(r.URL); err != nil {
		return nil, err
	}
	if !router.Intercepts(r) {
		return w.passThrough(ctx, r)
	}
	if w.State() != StateActive {
		// Pages are not controlled until activation.
		return w.deps.Fetcher.Fetch(ctx, r)
	}

	res, route, err := w.router.Dispatch(ctx, r)
	if err != nil {
		return nil, err
	}
	out := res.Response(r)
	out.Header.Set(HeaderCacheSource, string(res.Source))
	out.Header.Set(HeaderCacheStore, route.Store)
	return out, nil
}

// Response headers describing how a request was answered.
const (
	HeaderCacheSource = "X-Cinescope-Source"
	HeaderCacheStore  = "X-Cinescope-Store"
)

// SyncAll drains every sync tag. It satisfies offline.Drainer so the
// periodic loop goes through the same path as explicit triggers.
func (w *Worker) SyncAll(ctx context.Context) ([]offline.SyncResult, error) {
	var results []offline.SyncResult
	var firstErr error
	for _, tag := range offline.Tags() {
		res, err := w.Sync(ctx, tag)
		results = append(results, res)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}

// Sync drains the pending actions selected by tag.
func (w *Worker) Sync(ctx context.Context, tag string) (res offline.SyncResult, err error) {
	defer func() { metrics.RecordWorkerEvent("sync", err) }()

	res, err = w.deps.Syncer.Sync(ctx, tag)
	if res.Delivered > 0 {
		w.deps.Notifier.BroadcastJSON(MessageSyncCompleted, res)
	}
	return res, err
}
