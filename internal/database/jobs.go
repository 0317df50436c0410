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

	"github.com/google/uuid"

	"github.com/tomtom215/fieldsync/internal/models"
)

// JobFilter narrows ListJobs. Empty fields match everything.
type JobFilter struct {
	TenantID string
	Family   string
	Status   string
	Limit    int
}

const jobColumns = `id, family, type, tenant_id, payload, priority, attempts, max_attempts,
	status, run_at, lease_until, lease_holder, last_error, dedupe_key,
	created_at, updated_at, finished_at`

// EnqueueJob inserts a queued job. When DedupeKey is set and a queued or
// running job already carries it, that job is returned with created=false.
func (db *DB) EnqueueJob(ctx context.Context, job *models.Job) (stored *models.Job, created bool, err error) {
	start := time.Now()
	defer func() { observe("enqueue", "jobs", start, err) }()

	db.jobsMu.Lock()
	defer db.jobsMu.Unlock()

	if job.DedupeKey != "" {
		row := db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs
			WHERE dedupe_key = ? AND status IN ('queued', 'running')
			ORDER BY created_at LIMIT 1`, job.DedupeKey)
		existing, scanErr := scanJob(row)
		if scanErr == nil {
			return existing, false, nil
		}
		if !errors.Is(scanErr, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to check job dedupe key: %w", scanErr)
		}
	}

	now := db.timestamp()
	j := *job
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if len(j.Payload) == 0 {
		j.Payload = []byte("{}")
	}
	if j.RunAt.IsZero() {
		j.RunAt = now
	}
	j.RunAt = j.RunAt.UTC().Truncate(time.Microsecond)
	j.Status = models.JobStatusQueued
	j.Attempts = 0
	j.CreatedAt = now
	j.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx, `INSERT INTO jobs (
			id, family, type, tenant_id, payload, priority, attempts, max_attempts,
			status, run_at, dedupe_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Family, j.Type, j.TenantID, string(j.Payload), j.Priority, j.MaxAttempts,
		j.Status, j.RunAt, nullable(j.DedupeKey), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return &j, true, nil
}

// ClaimJob leases the next runnable job of a family to holder: the highest
// priority, then oldest, queued job that is due, or a running job whose
// lease expired. Claiming increments attempts. It returns ErrNotFound when
// nothing is runnable.
func (db *DB) ClaimJob(ctx context.Context, family, holder string, lease time.Duration) (job *models.Job, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			observe("claim", "jobs", start, nil)
			return
		}
		observe("claim", "jobs", start, err)
	}()

	db.jobsMu.Lock()
	defer db.jobsMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, err)
		}
	}()

	now := db.timestamp()
	// An expired lease counts as a failed attempt; exhausted jobs are not redelivered.
	if _, err = tx.ExecContext(ctx, `UPDATE jobs SET
			status = 'failed',
			last_error = 'lease expired after max attempts',
			lease_until = NULL,
			lease_holder = NULL,
			finished_at = ?,
			updated_at = ?
		WHERE family = ? AND status = 'running' AND lease_until < ? AND attempts >= max_attempts`,
		now, now, family, now); err != nil {
		return nil, fmt.Errorf("failed to expire exhausted leases: %w", err)
	}

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM jobs
		WHERE family = ?
			AND ((status = 'queued' AND run_at <= ?) OR (status = 'running' AND lease_until < ?))
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`, family, now, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select job: %w", err)
	}

	leaseUntil := now.Add(lease)
	if _, err = tx.ExecContext(ctx, `UPDATE jobs SET
			status = 'running',
			attempts = attempts + 1,
			lease_until = ?,
			lease_holder = ?,
			updated_at = ?
		WHERE id = ?`, leaseUntil, holder, now, id); err != nil {
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}

	job, err = scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read leased job: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return job, nil
}

// ExtendJobLease pushes the lease of a running job forward.
func (db *DB) ExtendJobLease(ctx context.Context, id, holder string, lease time.Duration) error {
	now := db.timestamp()
	return db.transitionJob(ctx, `UPDATE jobs SET lease_until = ?, updated_at = ?
		WHERE id = ? AND lease_holder = ? AND status = 'running'`,
		now.Add(lease), now, id, holder)
}

// CompleteJob marks a leased job succeeded.
func (db *DB) CompleteJob(ctx context.Context, id, holder string) error {
	now := db.timestamp()
	return db.transitionJob(ctx, `UPDATE jobs SET
			status = 'succeeded', lease_until = NULL, last_error = NULL,
			updated_at = ?, finished_at = ?
		WHERE id = ? AND lease_holder = ? AND status = 'running'`,
		now, now, id, holder)
}

// RescheduleJob requeues a leased job to run again at runAt.
func (db *DB) RescheduleJob(ctx context.Context, id, holder string, runAt time.Time, lastErr string) error {
	return db.transitionJob(ctx, `UPDATE jobs SET
			status = 'queued', run_at = ?, lease_until = NULL, last_error = ?, updated_at = ?
		WHERE id = ? AND lease_holder = ? AND status = 'running'`,
		runAt.UTC(), lastErr, db.timestamp(), id, holder)
}

// FailJob marks a leased job terminally failed.
func (db *DB) FailJob(ctx context.Context, id, holder, lastErr string) error {
	now := db.timestamp()
	return db.transitionJob(ctx, `UPDATE jobs SET
			status = 'failed', lease_until = NULL, last_error = ?,
			updated_at = ?, finished_at = ?
		WHERE id = ? AND lease_holder = ? AND status = 'running'`,
		lastErr, now, now, id, holder)
}

func (db *DB) transitionJob(ctx context.Context, query string, args ...any) (err error) {
	start := time.Now()
	defer func() { observe("transition", "jobs", start, err) }()

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// RetryJob requeues a failed job with a fresh attempt budget.
func (db *DB) RetryJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := db.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed {
		return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidState, id, job.Status)
	}

	now := db.timestamp()
	if _, err := db.conn.ExecContext(ctx, `UPDATE jobs SET
			status = 'queued', attempts = 0, run_at = ?, lease_until = NULL,
			lease_holder = NULL, finished_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'failed'`, now, now, id); err != nil {
		return nil, fmt.Errorf("failed to requeue job: %w", err)
	}
	return db.GetJob(ctx, id)
}

// GetJob returns one job.
func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (db *DB) ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	if filter.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, filter.TenantID)
	}
	if filter.Family != "" {
		query += " AND family = ?"
		args = append(args, filter.Family)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// PurgeJobs deletes finished jobs older than the cutoff.
func (db *DB) PurgeJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN ('succeeded', 'failed') AND finished_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}
	return res.RowsAffected()
}

// JobStats counts jobs per family and status.
func (db *DB) JobStats(ctx context.Context) (models.JobStats, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT family, status, COUNT(*) FROM jobs GROUP BY family, status ORDER BY family, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	stats := make(models.JobStats)
	for _, family := range models.Families {
		stats[family] = map[string]int64{
			models.JobStatusQueued:    0,
			models.JobStatusRunning:   0,
			models.JobStatusSucceeded: 0,
			models.JobStatusFailed:    0,
		}
	}
	for rows.Next() {
		var (
			family, status string
			n              int64
		)
		if err := rows.Scan(&family, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		if stats[family] == nil {
			stats[family] = make(map[string]int64)
		}
		stats[family][status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job stats: %w", err)
	}
	return stats, nil
}

func scanJob(row scanner) (*models.Job, error) {
	var (
		j                          models.Job
		payload                    string
		leaseUntil, finished       sql.NullTime
		holder, lastErr, dedupeKey sql.NullString
	)
	if err := row.Scan(&j.ID, &j.Family, &j.Type, &j.TenantID, &payload, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.Status, &j.RunAt, &leaseUntil, &holder, &lastErr, &dedupeKey,
		&j.CreatedAt, &j.UpdatedAt, &finished); err != nil {
		return nil, err
	}
	j.Payload = []byte(payload)
	j.RunAt = j.RunAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	j.LeaseUntil = timePtr(leaseUntil)
	j.FinishedAt = timePtr(finished)
	j.LeaseHolder = holder.String
	j.LastError = lastErr.String
	j.DedupeKey = dedupeKey.String
	return &j, nil
}
