// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/fieldsync/internal/models"
)

// UpsertOverrides writes pending overrides in one transaction. An existing
// row for the same (entity, field) takes the new value and a strictly newer
// updated_at version; its attempt counter and last error are reset.
func (db *DB) UpsertOverrides(ctx context.Context, overrides []models.PendingOverride) (err error) {
	if len(overrides) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("upsert", "pending_overrides", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, err)
		}
	}()

	now := db.timestamp()
	for _, o := range dedupeOverrides(overrides) {
		_, err = tx.ExecContext(ctx, `INSERT INTO pending_overrides (
				tenant_id, entity_id, field, entity_type, value, created_at, updated_at, attempts
			) VALUES (?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (tenant_id, entity_id, field) DO UPDATE SET
				value = EXCLUDED.value,
				entity_type = EXCLUDED.entity_type,
				updated_at = greatest(EXCLUDED.updated_at, pending_overrides.updated_at + INTERVAL '1 microsecond'),
				pushed_at = NULL,
				attempts = 0,
				last_error = NULL`,
			o.TenantID, o.EntityID, o.Field, o.EntityType, string(o.Value), now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert override %s.%s: %w", o.EntityID, o.Field, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListPending returns pending overrides of a tenant ordered by entity and
// field. An empty entityType returns every type.
func (db *DB) ListPending(ctx context.Context, tenantID, entityType string) ([]models.PendingOverride, error) {
	query := `SELECT tenant_id, entity_id, field, entity_type, value, created_at, updated_at,
		pushed_at, attempts, last_error
	FROM pending_overrides WHERE tenant_id = ?`
	args := []any{tenantID}
	if entityType != "" {
		query += " AND entity_type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY entity_id, field"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending overrides: %w", err)
	}
	defer rows.Close()

	out := make([]models.PendingOverride, 0)
	for rows.Next() {
		var (
			o       models.PendingOverride
			value   string
			pushed  sql.NullTime
			lastErr sql.NullString
		)
		if err := rows.Scan(&o.TenantID, &o.EntityID, &o.Field, &o.EntityType, &value,
			&o.CreatedAt, &o.UpdatedAt, &pushed, &o.Attempts, &lastErr); err != nil {
			return nil, fmt.Errorf("failed to scan pending override: %w", err)
		}
		o.Value = []byte(value)
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		o.PushedAt = timePtr(pushed)
		o.LastError = lastErr.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending overrides: %w", err)
	}
	return out, nil
}

// CountPending returns the number of pending overrides of a tenant and type.
func (db *DB) CountPending(ctx context.Context, tenantID, entityType string) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_overrides WHERE tenant_id = ? AND entity_type = ?`,
		tenantID, entityType).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending overrides: %w", err)
	}
	return n, nil
}

// RecordPushFailure bumps the attempt counter and stores the rejection on
// every pending row of an entity. pushed_at stays unset; nothing was accepted.
func (db *DB) RecordPushFailure(ctx context.Context, tenantID, entityID, message string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE pending_overrides SET
			attempts = attempts + 1,
			last_error = ?
		WHERE tenant_id = ? AND entity_id = ?`,
		message, tenantID, entityID)
	if err != nil {
		return fmt.Errorf("failed to record push failure: %w", err)
	}
	return nil
}

// dedupeOverrides keeps the last override per (tenant, entity, field).
func dedupeOverrides(overrides []models.PendingOverride) []models.PendingOverride {
	type key struct{ tenant, entity, field string }
	index := make(map[key]int, len(overrides))
	out := make([]models.PendingOverride, 0, len(overrides))
	for _, o := range overrides {
		k := key{o.TenantID, o.EntityID, o.Field}
		if i, ok := index[k]; ok {
			out[i] = o
			continue
		}
		index[k] = len(out)
		out = append(out, o)
	}
	return out
}
