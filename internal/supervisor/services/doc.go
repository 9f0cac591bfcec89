// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package services adapts the edge's long-lived components to suture.Service.

  - HTTPServerService: *http.Server, graceful Shutdown on cancellation
  - WebSocketHubService: the page channel hub
  - LoopService: Start/Stop loops such as offline.SyncLoop and storage.GCLoop
  - InstallService: one-shot worker install, retried until it succeeds

Each wrapper implements fmt.Stringer so supervisor events name the service.
The wrappers depend on small interfaces rather than the concrete types, so
this package imports neither the worker nor the storage packages.
*/
package services
