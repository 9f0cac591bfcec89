// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package offline holds mutating requests that could not reach the origin and
replays them when a sync is triggered.

# Tables

The queue database has two logical tables, created by Migrate before any
read or write:

  - pending-actions: Action records keyed by a monotonic uint64 ID
  - cached-data: opaque JSON values keyed by string

IDs come from a Badger sequence, so they keep increasing across restarts and
iteration over the pending-actions prefix yields insertion order.

# Sync

A sync tag selects one action type:

	sync-ratings   -> rating
	sync-watchlist -> watchlist
	sync-reviews   -> review

Syncer.Sync replays every pending action of that type in insertion order.
A 2xx response deletes the action; anything else leaves it queued for the next
trigger. Delivery is at-least-once, so the origin must tolerate duplicates.
Actions of other types are never touched.

Replays are paced by a token bucket (golang.org/x/time/rate) so a long queue
drained after an outage does not flood the origin.

Drains of one tag are serialized, so a trigger that arrives mid-drain waits
for it instead of replaying the same actions twice.

SyncLoop calls a Drainer's SyncAll on an interval and is supervised like the
other background services. The worker is the Drainer in production, so the
loop and explicit triggers share one path.
*/
package offline
