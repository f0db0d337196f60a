// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package websocket implements the /chat connection gateway.

A connection is authenticated once, before the upgrade, from a bearer token
in the Authorization header or the token query parameter. After that the
connection moves between rooms (one per chat) by sending chat:join and
chat:leave events.

Key Components:

  - Handler: authenticates and upgrades HTTP requests
  - Gateway: decodes events, applies chat rules and fans results out
  - Hub: this node's connections and room memberships
  - Client: one connection with its read and write goroutines

Architecture:

	┌─────────┐   events   ┌─────────┐  chat.Service   ┌──────────┐
	│ Client  │ ─────────→ │ Gateway │ ──────────────→ │ Postgres │
	└─────────┘            └────┬────┘                 └──────────┘
	     ↑                      │ BroadcastRoom / BroadcastAll
	     │   frames        ┌────┴────┐
	     └──────────────── │   Hub   │
	                       └─────────┘

Each client has two goroutines:
  - readPump: reads frames and dispatches them in arrival order
  - writePump: writes queued frames and sends pings

Frames:

Every frame is a JSON envelope:

	{"event": "chat:message", "data": {"chatId": "c1", "content": "hi"}}

Client events: chat:join, chat:leave, chat:typing, chat:message,
chat:message:edit, chat:message:delete.

Server events: user:presence, chat:user:joined, chat:user:left,
chat:typing, chat:message, chat:message:edited, chat:message:deleted,
error.

Presence:

The gateway records every connection in a presence.Registry. The first
connection of a user is announced to everyone else with
user:presence{isOnline:true}; the new connection receives one
user:presence per other online user. Closing the last connection announces
isOnline:false.

Errors:

Handler failures become an error event on the originating connection with
a stable code (FORBIDDEN, NOT_FOUND, VALIDATION_ERROR, RATE_LIMITED,
INTERNAL_ERROR). Panics are recovered the same way.

Thread Safety:

All hub operations take the hub mutex. Room broadcasts are delivered while
holding it, so members observe a room's events in one order. A client whose
send buffer is full is dropped.
*/
package websocket
