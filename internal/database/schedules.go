// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/fieldsync/internal/models"
)

// ReplaceSchedules deletes schedules that are not in the given set and
// upserts the rest by name. Last and next run times of kept schedules are
// preserved unless the cron expression changed.
func (db *DB) ReplaceSchedules(ctx context.Context, schedules []models.Schedule) (err error) {
	start := time.Now()
	defer func() { observe("replace", "schedules", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, err)
		}
	}()

	if len(schedules) == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM schedules`)
	} else {
		placeholders := make([]string, len(schedules))
		args := make([]any, len(schedules))
		for i, s := range schedules {
			placeholders[i] = "?"
			args[i] = s.Name
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM schedules WHERE name NOT IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to clear stale schedules: %w", err)
	}

	now := db.timestamp()
	for _, s := range schedules {
		_, err = tx.ExecContext(ctx, `INSERT INTO schedules (
				name, cron, job_type, sync_type, enabled, next_run_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				job_type = EXCLUDED.job_type,
				sync_type = EXCLUDED.sync_type,
				enabled = EXCLUDED.enabled,
				next_run_at = CASE WHEN schedules.cron = EXCLUDED.cron THEN schedules.next_run_at ELSE EXCLUDED.next_run_at END,
				cron = EXCLUDED.cron,
				updated_at = EXCLUDED.updated_at`,
			s.Name, s.Cron, s.JobType, nullable(s.SyncType), s.Enabled, nullableTime(s.NextRunAt), now)
		if err != nil {
			return fmt.Errorf("failed to upsert schedule %s: %w", s.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSchedules returns every registered schedule ordered by name.
func (db *DB) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, cron, job_type, sync_type, enabled,
		last_run_at, next_run_at, updated_at FROM schedules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	out := make([]models.Schedule, 0)
	for rows.Next() {
		var (
			s             models.Schedule
			syncType      sql.NullString
			lastRun, next sql.NullTime
		)
		if err := rows.Scan(&s.Name, &s.Cron, &s.JobType, &syncType, &s.Enabled,
			&lastRun, &next, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		s.SyncType = syncType.String
		s.LastRunAt = timePtr(lastRun)
		s.NextRunAt = timePtr(next)
		s.UpdatedAt = s.UpdatedAt.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return out, nil
}

// MarkScheduleRun records a fired slot and the next due time.
func (db *DB) MarkScheduleRun(ctx context.Context, name string, ranAt, next time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE schedules SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE name = ?`,
		ranAt.UTC(), next.UTC(), db.timestamp(), name)
	if err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
