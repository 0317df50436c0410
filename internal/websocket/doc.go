// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package websocket delivers real-time sync and category events to dashboard
clients over gorilla/websocket.

Key Components:

  - Hub: registers clients and fans tenant-scoped payloads out to them
  - Client: one websocket connection bound to a tenant, with read and write pumps

Architecture:

	notify.Bridge ── BroadcastToTenant(tenant, payload) ──► Hub
	                                                        │
	                         ┌──────────────┬───────────────┤
	                         │              │               │
	                   Client(acme)   Client(acme)    Client(globex)

A payload broadcast for a tenant reaches only the clients registered for
that tenant. Payloads are pre-serialized notify events and are written to
the socket as text frames without re-encoding.

Each client has two goroutines:
  - readPump: reads client frames, answers {"type":"ping"} with {"type":"pong"}
  - writePump: writes queued payloads and keepalive pings

Backpressure:

Every client has a 256-message send buffer. A client whose buffer is full
is disconnected instead of blocking the hub. The hub's own broadcast queue
also holds 256 messages; when it is full the payload is dropped and counted
in fieldsync_websocket_messages_total{result="dropped"}.

Supervision:

Hub implements suture.Service. When its context is cancelled every client
is closed, and a restarted hub accepts new registrations.
*/
package websocket
