// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package main provides the Fieldsync HTTP server
//
// @title Fieldsync API
// @version 1.0
// @description Admin API of the field-service CRM synchronization engine.
// @description
// @description Fieldsync mirrors a rate-limited field-service SaaS into a local
// @description DuckDB store, keeps per-entity sync state, pushes locally edited
// @description categories back to the source and runs all work through a
// @description persistent priority job queue.
// @description
// @description ## Authentication
// @description
// @description With AUTH_MODE=jwt every endpoint except the health probes needs a
// @description bearer token. Mint one with `fieldsync token -subject <name> -roles operator`.
// @description
// @description ## Error Responses
// @description
// @description ```json
// @description {
// @description   "status": "error",
// @description   "error": {"code": "NOT_FOUND", "message": "category 7 not found"},
// @description   "metadata": {"timestamp": "2026-01-01T00:00:00Z"}
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/fieldsync/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer JWT. Format: "Bearer <token>".
//
// @tag.name Core
// @tag.description Health probes, breaker state and system status
//
// @tag.name Sync
// @tag.description Sync triggers, per-entity sync state and the entity catalogue
//
// @tag.name Categories
// @tag.description Local category tree, edits and pushback to the source
//
// @tag.name Jobs
// @tag.description Persistent job queue inspection and enqueueing
//
// @tag.name Realtime
// @tag.description WebSocket stream of sync, job and category events
package main
