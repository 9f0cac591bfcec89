// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package supervisor runs the edge's long-lived services under suture v4.

	RootSupervisor ("cinescope")
	├── StorageSupervisor ("storage-layer")
	│   ├── badger-gc-cache
	│   └── badger-gc-queue
	├── EdgeSupervisor ("edge-layer")
	│   ├── worker-install   (one-shot, retried until the precache succeeds)
	│   ├── offline-sync     (periodic drain of every sync tag)
	│   └── websocket-hub
	└── APISupervisor ("api-layer")
	    └── http-server

Crashed services are restarted with suture's decaying failure counter;
once FailureThreshold is crossed the layer backs off for FailureBackoff.
Supervisor events are logged through sutureslog into the zerolog pipeline.

Context cancellation stops the tree. Services that miss ShutdownTimeout
are listed by UnstoppedServiceReport.

The Badger databases themselves are not supervised. They are opened
before the tree starts and closed after it returns.

See internal/supervisor/services for the service wrappers.
*/
package supervisor
