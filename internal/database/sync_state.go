// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/fieldsync/internal/models"
)

// AbandonedMessage is recorded on a run whose slot was taken over after it
// stopped reporting progress.
const AbandonedMessage = "abandoned"

// SlotClaim is the outcome of ClaimSyncSlot.
type SlotClaim struct {
	Acquired bool
	// HolderSyncID is the sync id holding the slot after the claim.
	HolderSyncID string
	// AbandonedSyncID is the stale run that was displaced, if any.
	AbandonedSyncID string
}

const syncStateColumns = `tenant_id, entity_type, status, sync_id, sync_type,
	last_full_sync_at, last_incremental_sync_at, last_sync_at, started_at,
	records_synced, error_count, error_message, updated_at`

// ClaimSyncSlot marks the (tenant, entity type) slot running under syncID
// with one conditional upsert. The slot is taken only when it is not
// running or when its last update is older than staleBefore.
func (db *DB) ClaimSyncSlot(ctx context.Context, tenantID, entityType, syncType, syncID string, staleBefore time.Time) (claim SlotClaim, err error) {
	start := time.Now()
	defer func() { observe("claim", "sync_state", start, err) }()

	var (
		prevStatus  sql.NullString
		prevSyncID  sql.NullString
		prevUpdated sql.NullTime
	)
	err = db.conn.QueryRowContext(ctx,
		`SELECT status, sync_id, updated_at FROM sync_state WHERE tenant_id = ? AND entity_type = ?`,
		tenantID, entityType).Scan(&prevStatus, &prevSyncID, &prevUpdated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return claim, fmt.Errorf("failed to read sync state: %w", err)
	}
	err = nil

	now := db.timestamp()
	stale := staleBefore.UTC()
	err = withConflictRetry(ctx, func() error {
		_, execErr := db.conn.ExecContext(ctx, `INSERT INTO sync_state (
				tenant_id, entity_type, status, sync_id, sync_type, started_at,
				records_synced, error_count, error_message, updated_at
			) VALUES (?, ?, 'running', ?, ?, ?, 0, 0, NULL, ?)
			ON CONFLICT (tenant_id, entity_type) DO UPDATE SET
				status = 'running',
				sync_id = EXCLUDED.sync_id,
				sync_type = EXCLUDED.sync_type,
				started_at = EXCLUDED.started_at,
				records_synced = 0,
				error_count = 0,
				error_message = NULL,
				updated_at = EXCLUDED.updated_at
			WHERE sync_state.status <> 'running' OR sync_state.updated_at < ?`,
			tenantID, entityType, syncID, syncType, now, now, stale)
		return execErr
	})
	if err != nil {
		return claim, fmt.Errorf("failed to claim sync slot: %w", err)
	}

	var holder sql.NullString
	if err = db.conn.QueryRowContext(ctx,
		`SELECT sync_id FROM sync_state WHERE tenant_id = ? AND entity_type = ?`,
		tenantID, entityType).Scan(&holder); err != nil {
		return claim, fmt.Errorf("failed to read sync slot holder: %w", err)
	}
	claim.HolderSyncID = holder.String
	if holder.String != syncID {
		return claim, nil
	}
	claim.Acquired = true

	if _, err = db.conn.ExecContext(ctx, `INSERT INTO sync_runs (
			sync_id, tenant_id, entity_type, sync_type, status, started_at
		) VALUES (?, ?, ?, ?, 'running', ?)`,
		syncID, tenantID, entityType, syncType, now); err != nil {
		return claim, fmt.Errorf("failed to record sync run: %w", err)
	}

	if prevStatus.String == models.SyncStatusRunning && prevSyncID.Valid && prevSyncID.String != syncID {
		claim.AbandonedSyncID = prevSyncID.String
		if err = db.finishRun(ctx, prevSyncID.String, models.SyncStatusFailed, nil, nil, AbandonedMessage); err != nil {
			return claim, err
		}
	}
	return claim, nil
}

// UpdateSyncProgress records progress for a running sync and refreshes its
// heartbeat. It returns false when the sync no longer holds the slot.
func (db *DB) UpdateSyncProgress(ctx context.Context, syncID string, recordsSynced int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE sync_state SET records_synced = ?, updated_at = ? WHERE sync_id = ? AND status = 'running'`,
		recordsSynced, db.timestamp(), syncID)
	if err != nil {
		return false, fmt.Errorf("failed to update sync progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// CompleteSync marks a running sync completed. Watermarks are stamped with
// the run's start time so records modified during the run are fetched again
// by the next incremental sync.
func (db *DB) CompleteSync(ctx context.Context, syncID string, recordsSynced, errorCount int64) (ok bool, err error) {
	start := time.Now()
	defer func() { observe("complete", "sync_state", start, err) }()

	now := db.timestamp()
	res, err := db.conn.ExecContext(ctx, `UPDATE sync_state SET
			status = 'completed',
			last_sync_at = ?,
			last_full_sync_at = CASE WHEN sync_type IN ('full', 'reference') THEN started_at ELSE last_full_sync_at END,
			last_incremental_sync_at = CASE WHEN sync_type = 'incremental' THEN started_at ELSE last_incremental_sync_at END,
			records_synced = ?,
			error_count = ?,
			updated_at = ?
		WHERE sync_id = ? AND status = 'running'`,
		now, recordsSynced, errorCount, now, syncID)
	if err != nil {
		return false, fmt.Errorf("failed to complete sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	return true, db.finishRun(ctx, syncID, models.SyncStatusCompleted, &recordsSynced, &errorCount, "")
}

// FailSync marks a running sync failed and keeps the error message.
func (db *DB) FailSync(ctx context.Context, syncID, message string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `UPDATE sync_state SET
			status = 'failed',
			error_count = error_count + 1,
			error_message = ?,
			updated_at = ?
		WHERE sync_id = ? AND status = 'running'`,
		message, db.timestamp(), syncID)
	if err != nil {
		return false, fmt.Errorf("failed to mark sync failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	return true, db.finishRun(ctx, syncID, models.SyncStatusFailed, nil, nil, message)
}

// CancelSync flips a running slot to cancelled and returns the cancelled
// sync id, or "" when nothing was running.
func (db *DB) CancelSync(ctx context.Context, tenantID, entityType string) (string, error) {
	var syncID sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT sync_id FROM sync_state WHERE tenant_id = ? AND entity_type = ? AND status = 'running'`,
		tenantID, entityType).Scan(&syncID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync state: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE sync_state SET status = 'cancelled', updated_at = ? WHERE sync_id = ? AND status = 'running'`,
		db.timestamp(), syncID.String)
	if err != nil {
		return "", fmt.Errorf("failed to cancel sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", nil
	}
	return syncID.String, db.finishRun(ctx, syncID.String, models.SyncStatusCancelled, nil, nil, "")
}

// IsSyncActive reports whether syncID still holds a running slot.
func (db *DB) IsSyncActive(ctx context.Context, syncID string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_state WHERE sync_id = ? AND status = 'running'`,
		syncID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check sync state: %w", err)
	}
	return n > 0, nil
}

// GetSyncState returns the slot row for a tenant and entity type.
func (db *DB) GetSyncState(ctx context.Context, tenantID, entityType string) (*models.SyncState, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+syncStateColumns+` FROM sync_state WHERE tenant_id = ? AND entity_type = ?`,
		tenantID, entityType)
	state, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return state, err
}

// GetSyncStateBySyncID returns the slot row currently held by syncID.
func (db *DB) GetSyncStateBySyncID(ctx context.Context, syncID string) (*models.SyncState, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+syncStateColumns+` FROM sync_state WHERE sync_id = ?`, syncID)
	state, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return state, err
}

// ListSyncStates returns every slot of a tenant ordered by entity type.
func (db *DB) ListSyncStates(ctx context.Context, tenantID string) ([]models.SyncState, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+syncStateColumns+` FROM sync_state WHERE tenant_id = ? ORDER BY entity_type`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	defer rows.Close()

	states := make([]models.SyncState, 0)
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}
	return states, nil
}

func scanSyncState(row scanner) (*models.SyncState, error) {
	var (
		s                                 models.SyncState
		syncID, syncType, errMsg          sql.NullString
		lastFull, lastIncr, last, started sql.NullTime
	)
	if err := row.Scan(&s.TenantID, &s.EntityType, &s.Status, &syncID, &syncType,
		&lastFull, &lastIncr, &last, &started,
		&s.RecordsSynced, &s.ErrorCount, &errMsg, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.SyncID = syncID.String
	s.SyncType = syncType.String
	s.ErrorMessage = errMsg.String
	s.LastFullSyncAt = timePtr(lastFull)
	s.LastIncrementalSyncAt = timePtr(lastIncr)
	s.LastSyncAt = timePtr(last)
	s.StartedAt = timePtr(started)
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

// finishRun closes a running sync_runs row. Nil counters keep the stored
// values.
func (db *DB) finishRun(ctx context.Context, syncID, status string, records, errorCount *int64, message string) error {
	var recordsArg, errorsArg any
	if records != nil {
		recordsArg = *records
	}
	if errorCount != nil {
		errorsArg = *errorCount
	}
	_, err := db.conn.ExecContext(ctx, `UPDATE sync_runs SET
			status = ?,
			finished_at = ?,
			records_synced = COALESCE(CAST(? AS BIGINT), records_synced),
			error_count = COALESCE(CAST(? AS BIGINT), error_count),
			error_message = ?
		WHERE sync_id = ? AND status = 'running'`,
		status, db.timestamp(), recordsArg, errorsArg, nullable(message), syncID)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// UpdateRunProgress mirrors the progress counter onto the history row.
func (db *DB) UpdateRunProgress(ctx context.Context, syncID string, recordsSynced int64) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE sync_runs SET records_synced = ? WHERE sync_id = ? AND status = 'running'`,
		recordsSynced, syncID); err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

// ListSyncRuns returns the newest runs of a tenant, optionally filtered by
// entity type.
func (db *DB) ListSyncRuns(ctx context.Context, tenantID, entityType string, limit int) ([]models.SyncRun, error) {
	query := `SELECT sync_id, tenant_id, entity_type, sync_type, status, started_at,
		finished_at, records_synced, error_count, error_message
	FROM sync_runs WHERE tenant_id = ?`
	args := []any{tenantID}
	if entityType != "" {
		query += " AND entity_type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY started_at DESC, sync_id LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.SyncRun, 0)
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

// GetSyncRun returns one history row.
func (db *DB) GetSyncRun(ctx context.Context, syncID string) (*models.SyncRun, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT sync_id, tenant_id, entity_type, sync_type, status, started_at,
		finished_at, records_synced, error_count, error_message
	FROM sync_runs WHERE sync_id = ?`, syncID)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func scanSyncRun(row scanner) (*models.SyncRun, error) {
	var (
		r        models.SyncRun
		finished sql.NullTime
		errMsg   sql.NullString
	)
	if err := row.Scan(&r.SyncID, &r.TenantID, &r.EntityType, &r.SyncType, &r.Status, &r.StartedAt,
		&finished, &r.RecordsSynced, &r.ErrorCount, &errMsg); err != nil {
		return nil, err
	}
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = timePtr(finished)
	r.ErrorMessage = errMsg.String
	return &r, nil
}
