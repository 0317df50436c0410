// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
schema.go - Database Schema Management

Fixed tables:
  - sync_state: one row per (tenant_id, entity_type), the sync slot
  - sync_runs: one row per started sync, backs the history endpoint
  - categories: master layer, source_* columns mirrored from raw_categories
  - pending_overrides: local edits awaiting push-back
  - jobs: durable job queue with leases
  - schedules: registered cron schedules

Raw tables (raw_<entity>) are created on demand from fetcher descriptors,
see raw.go.

Document columns are VARCHAR holding JSON text. The json extension is
never loaded, so JSON is validated and parsed in Go.

Only primary keys are declared. DuckDB ART indexes on upserted columns
trigger over-eager constraint checks inside transactions.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the fixed tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			tenant_id VARCHAR NOT NULL,
			entity_type VARCHAR NOT NULL,
			status VARCHAR NOT NULL DEFAULT 'idle',
			sync_id VARCHAR,
			sync_type VARCHAR,
			last_full_sync_at TIMESTAMP,
			last_incremental_sync_at TIMESTAMP,
			last_sync_at TIMESTAMP,
			started_at TIMESTAMP,
			records_synced BIGINT NOT NULL DEFAULT 0,
			error_count BIGINT NOT NULL DEFAULT 0,
			error_message VARCHAR,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, entity_type)
		)`,

		`CREATE TABLE IF NOT EXISTS sync_runs (
			sync_id VARCHAR PRIMARY KEY,
			tenant_id VARCHAR NOT NULL,
			entity_type VARCHAR NOT NULL,
			sync_type VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			records_synced BIGINT NOT NULL DEFAULT 0,
			error_count BIGINT NOT NULL DEFAULT 0,
			error_message VARCHAR
		)`,

		// Effective values are composed at read time from source_* columns
		// and pending_overrides.
		`CREATE TABLE IF NOT EXISTS categories (
			tenant_id VARCHAR NOT NULL,
			id VARCHAR NOT NULL,
			source_id VARCHAR,
			source_parent_id VARCHAR,
			source_name VARCHAR NOT NULL DEFAULT '',
			source_sort_order BIGINT NOT NULL DEFAULT 0,
			source_image_ref VARCHAR NOT NULL DEFAULT '',
			source_visible BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS pending_overrides (
			tenant_id VARCHAR NOT NULL,
			entity_id VARCHAR NOT NULL,
			field VARCHAR NOT NULL,
			entity_type VARCHAR NOT NULL,
			value VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			pushed_at TIMESTAMP,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error VARCHAR,
			PRIMARY KEY (tenant_id, entity_id, field)
		)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id VARCHAR PRIMARY KEY,
			family VARCHAR NOT NULL,
			type VARCHAR NOT NULL,
			tenant_id VARCHAR NOT NULL,
			payload VARCHAR NOT NULL DEFAULT '{}',
			priority INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 3,
			status VARCHAR NOT NULL,
			run_at TIMESTAMP NOT NULL,
			lease_until TIMESTAMP,
			lease_holder VARCHAR,
			last_error VARCHAR,
			dedupe_key VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS schedules (
			name VARCHAR PRIMARY KEY,
			cron VARCHAR NOT NULL,
			job_type VARCHAR NOT NULL,
			sync_type VARCHAR,
			enabled BOOLEAN NOT NULL DEFAULT true,
			last_run_at TIMESTAMP,
			next_run_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
}
