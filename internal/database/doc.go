// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package database is the DuckDB persistence layer of the sync engine.
//
// # Overview
//
// One DB value owns the connection pool and exposes the stores used by the
// rest of the engine:
//   - raw.go: raw_<entity> tables, created from fetcher descriptors, with
//     one-statement upserts keyed by (tenant_id, source_id)
//   - sync_state.go: the per-(tenant, entity type) sync slot and run history
//   - categories.go: the category master layer (source values)
//   - pending.go: pending overrides awaiting push-back
//   - jobs.go: the durable job queue with leases
//   - schedules.go: registered cron schedules
//
// # Column Kinds
//
// Raw columns declare a ColumnKind. Native arrays are bound as typed lists
// (list_value with VARCHAR or BIGINT elements) and documents are stored as
// JSON text. Writing a value of the wrong kind returns ErrKindMismatch
// instead of coercing it.
//
// # Coordination
//
// The sync slot is claimed with a single conditional upsert. Job claims run
// in a transaction under an in-process mutex; DuckDB holds an exclusive
// lock on the database file, so one process owns the queue.
//
// # Testing
//
// Tests open ":memory:" databases:
//
//	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB"})
package database
