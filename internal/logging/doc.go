// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package logging provides centralized zerolog-based structured logging for Fieldsync.
//
// A single global zerolog logger is configured once at startup and shared by
// every component. Components derive child loggers with WithComponent, and
// request or job scoped code uses Ctx to pick up correlation fields carried
// on the context.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("entity_type", "customers").Msg("sync started")
//	logging.Err(err).Str("job_id", id).Msg("job failed")
//
//	ctx = logging.ContextWithTenantID(ctx, tenantID)
//	ctx = logging.ContextWithSyncID(ctx, syncID)
//	logging.Ctx(ctx).Info().Int("records", n).Msg("page upserted")
//
// # Configuration
//
// Environment Variables:
//
//	LOG_LEVEL   - Minimum log level: trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - Output format: json, console (default: json)
//	LOG_CALLER  - Include caller file:line: true, false (default: false)
//
// # Context Fields
//
// Ctx adds the following fields when present on the context:
//
//	correlation_id - short id generated per job or background run
//	request_id     - HTTP request id (set by the API middleware)
//	tenant_id      - tenant the work is scoped to
//	sync_id        - correlation token of the current sync run
//
// # Suture Integration
//
// NewSlogLogger returns an slog.Logger backed by zerolog so that
// sutureslog can report supervisor events through the same pipeline.
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
package logging
