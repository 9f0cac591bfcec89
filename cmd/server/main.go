// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/cinescope/internal/api"
	"github.com/tomtom215/cinescope/internal/cachestore"
	"github.com/tomtom215/cinescope/internal/config"
	"github.com/tomtom215/cinescope/internal/fetch"
	"github.com/tomtom215/cinescope/internal/logging"
	"github.com/tomtom215/cinescope/internal/metrics"
	"github.com/tomtom215/cinescope/internal/offline"
	"github.com/tomtom215/cinescope/internal/storage"
	"github.com/tomtom215/cinescope/internal/strategy"
	"github.com/tomtom215/cinescope/internal/supervisor"
	"github.com/tomtom215/cinescope/internal/supervisor/services"
	ws "github.com/tomtom215/cinescope/internal/websocket"
	"github.com/tomtom215/cinescope/internal/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("cache_version", cfg.Cache.Version).
		Str("upstream", cfg.Upstream.URL).
		Bool("in_memory", cfg.Storage.InMemory).
		Msg("Starting CineScope Edge")
	metrics.AppInfo.WithLabelValues(version, cfg.Cache.Version).Set(1)

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("CineScope Edge failed")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run wires the components, serves until a signal arrives and closes the
// databases after the supervisor tree has stopped.
//
//nolint:gocyclo // sequential setup
func run(cfg *config.Config) error {
	cacheDB, err := storage.Open("cache", cfg.Cache.Path, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeDB(cacheDB)

	queueDB, err := storage.Open("queue", cfg.Queue.Path, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeDB(queueDB)

	manager, err := cachestore.NewManager(cacheDB)
	if err != nil {
		return fmt.Errorf("open cache stores: %w", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache stores")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := offline.NewQueue(queueDB)
	if err := queue.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate offline queue: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing offline queue")
		}
	}()

	upstream, hosts, err := newUpstream(cfg.Upstream, cfg.Cache.ImageHost)
	if err != nil {
		return err
	}

	hub := ws.NewHub()
	tasks := strategy.NewBackground(cfg.Upstream.Timeout)
	w := worker.New(cfg.Cache, cfg.Queue, worker.Deps{
		Manager: manager,
		Strategy: &strategy.Deps{
			Manager:       manager,
			Fetcher:       upstream,
			Sink:          cachestore.LogSink{},
			Tasks:         tasks,
			OfflineKey:    cachestore.DescriptorKey(http.MethodGet, cfg.Cache.OfflinePage),
			MaxEntryBytes: cfg.Cache.MaxEntryBytes,
		},
		Fetcher:  upstream,
		Queue:    queue,
		Syncer:   offline.NewSyncer(queue, upstream, cfg.Queue),
		Notifier: hub,
		Hosts:    hosts,
	})
	// Revalidations and evictions outlive requests; let them finish before
	// the stores close.
	defer w.Wait()

	handler := api.NewHandler(w, queue, hub, cfg)
	hub.SetCommandHandler(handler.HandleCommand)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.NewChiMiddlewareConfig(cfg.Security)))

	if cfg.HasWildcardCORS() {
		logging.Warn().Msg("CORS_ORIGINS is '*': any site may drive /_sw and the page channel")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// sutureslog needs slog; the adapter writes into zerolog.
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddStorageService(services.NewLoopService(storage.NewGCLoop(cacheDB, cfg.Storage.GCInterval)))
	tree.AddStorageService(services.NewLoopService(storage.NewGCLoop(queueDB, cfg.Storage.GCInterval)))

	tree.AddEdgeService(services.NewInstallService(w))
	tree.AddEdgeService(services.NewWebSocketHubService(hub))
	if cfg.Queue.SyncInterval > 0 {
		tree.AddEdgeService(services.NewLoopService(offline.NewSyncLoop(w, cfg.Queue.SyncInterval)))
	} else {
		logging.Info().Msg("Periodic sync disabled (QUEUE_SYNC_INTERVAL=0), sync only on request")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	return nil
}

// newUpstream builds the origin fetcher, behind a circuit breaker when
// enabled. It fetches from the origin and imageHost only, and returns that
// host policy for request validation.
func newUpstream(cfg config.UpstreamConfig, imageHost string) (fetch.Fetcher, fetch.HostPolicy, error) {
	httpFetcher, err := fetch.NewHTTPFetcher(cfg, imageHost)
	if err != nil {
		return nil, fetch.HostPolicy{}, fmt.Errorf("create upstream fetcher: %w", err)
	}
	if !cfg.BreakerEnabled {
		return httpFetcher, httpFetcher.Hosts(), nil
	}
	return fetch.NewBreakerFetcher(httpFetcher, "upstream", cfg), httpFetcher.Hosts(), nil
}

func closeDB(db *storage.DB) {
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Str("db", db.Name()).Msg("Error closing database")
	}
}
