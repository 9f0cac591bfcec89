// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

/*
Package websocket is the page channel of the edge: the connection a
CineScope+ page keeps open to receive what a browser would deliver through
clients.matchAll() and postMessage, and to send control commands back.

Key Components:

  - Hub: tracks connected clients and broadcasts messages to all of them
  - Client: one connection with a read goroutine and a write goroutine
  - Message: the {"type": ..., "data": ...} envelope on the wire

Inbound frames are raw JSON. {"type":"ping"} is answered with a pong; any
other frame is handed to the hub's CommandHandler (the worker's Message
event, e.g. {"type":"SKIP_WAITING"}). A rejected command is answered on the
same connection with an "error" message; accepted commands produce no
reply, their effects arrive later as broadcasts.

Outbound message types:

  - controller_changed: a new version took control ({"version": "v2"})
  - notification: a push was turned into a notification
  - open_window: a notification click asks pages to open a URL
  - sync_completed: queued actions were delivered
  - cache_cleared: CLEAR_CACHE finished

Connection settings:

  - writeWait: 10 seconds (time allowed to write a message)
  - pongWait: 60 seconds (time allowed to read a pong)
  - pingPeriod: 54 seconds (must be below pongWait)
  - maxMessageSize: 512 KB
*/
package websocket
