// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/source"
)

var (
	// ErrNoJob is returned when no job is runnable or a job id is unknown.
	ErrNoJob = errors.New("no job")

	// ErrNotRetryable is returned by Retry for jobs that have not failed.
	ErrNotRetryable = errors.New("job is not in a failed state")
)

// Store is the durable queue. Implemented by *database.DB.
type Store interface {
	EnqueueJob(ctx context.Context, job *models.Job) (*models.Job, bool, error)
	ClaimJob(ctx context.Context, family, holder string, lease time.Duration) (*models.Job, error)
	ExtendJobLease(ctx context.Context, id, holder string, lease time.Duration) error
	CompleteJob(ctx context.Context, id, holder string) error
	RescheduleJob(ctx context.Context, id, holder string, runAt time.Time, lastErr string) error
	FailJob(ctx context.Context, id, holder, lastErr string) error
	RetryJob(ctx context.Context, id string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, filter database.JobFilter) ([]models.Job, error)
	PurgeJobs(ctx context.Context, olderThan time.Time) (int64, error)
	JobStats(ctx context.Context) (models.JobStats, error)
}

// EnqueueRequest describes a job to add. Payload is marshaled to JSON.
type EnqueueRequest struct {
	Family      string
	Type        string
	TenantID    string
	Payload     any
	Priority    int
	RunAt       time.Time
	DedupeKey   string
	MaxAttempts int // 0 = family default
}

// Queue wraps the job store with backoff and attempt accounting.
type Queue struct {
	store       Store
	backoffBase time.Duration
	backoffMax  time.Duration
	cooldown    time.Duration
	maxAttempts map[string]int
	now         func() time.Time
}

// NewQueue creates a queue using the backoff and attempt limits of cfg.
func NewQueue(store Store, cfg config.JobsConfig) *Queue {
	base := cfg.BackoffBase
	if base <= 0 {
		base = 5 * time.Second
	}
	maxDelay := cfg.BackoffMax
	if maxDelay < base {
		maxDelay = base
	}
	return &Queue{
		store:       store,
		backoffBase: base,
		backoffMax:  maxDelay,
		maxAttempts: map[string]int{
			models.FamilyInbound:      cfg.Inbound.MaxAttempts,
			models.FamilyOutbound:     cfg.Outbound.MaxAttempts,
			models.FamilyNotification: cfg.Notification.MaxAttempts,
			models.FamilyImage:        cfg.Image.MaxAttempts,
			models.FamilyWorkflow:     cfg.Workflow.MaxAttempts,
		},
		now: time.Now,
	}
}

// WithRateLimitCooldown sets the minimum delay before a job that failed on
// a source rate limit runs again.
func (q *Queue) WithRateLimitCooldown(d time.Duration) *Queue {
	q.cooldown = d
	return q
}

// Enqueue adds a job. When a queued or running job already holds
// req.DedupeKey, that job is returned with created=false.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*models.Job, bool, error) {
	if !knownFamily(req.Family) {
		return nil, false, source.NewValidationError("family", "unknown job family %q", req.Family)
	}
	if req.Type == "" {
		return nil, false, source.NewValidationError("type", "job type is required")
	}

	var payload []byte
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal job payload: %w", err)
		}
		payload = data
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts[req.Family]
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	job, created, err := q.store.EnqueueJob(ctx, &models.Job{
		Family:      req.Family,
		Type:        req.Type,
		TenantID:    req.TenantID,
		Payload:     payload,
		Priority:    req.Priority,
		MaxAttempts: maxAttempts,
		RunAt:       req.RunAt,
		DedupeKey:   req.DedupeKey,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		logging.Debug().
			Str("job_id", job.ID).
			Str("family", job.Family).
			Str("job_type", job.Type).
			Str("tenant_id", job.TenantID).
			Str("dedupe_key", job.DedupeKey).
			Msg("job enqueued")
	}
	return job, created, nil
}

// Claim leases the next runnable job of family. It returns ErrNoJob when
// nothing is due.
func (q *Queue) Claim(ctx context.Context, family, holder string, lease time.Duration) (*models.Job, error) {
	job, err := q.store.ClaimJob(ctx, family, holder, lease)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoJob
	}
	return job, err
}

// Extend pushes the lease of a running job forward.
func (q *Queue) Extend(ctx context.Context, job *models.Job, lease time.Duration) error {
	return q.store.ExtendJobLease(ctx, job.ID, job.LeaseHolder, lease)
}

// Complete marks a leased job succeeded.
func (q *Queue) Complete(ctx context.Context, job *models.Job) error {
	return q.store.CompleteJob(ctx, job.ID, job.LeaseHolder)
}

// Fail records a handler error. Permanent and validation errors, unknown
// job types and jobs out of attempts fail terminally; anything else is
// rescheduled after a backoff. It reports whether the failure was terminal.
func (q *Queue) Fail(ctx context.Context, job *models.Job, cause error) (bool, error) {
	msg := cause.Error()
	var unknown *UnknownTypeError
	if source.IsTerminal(cause) || errors.As(cause, &unknown) || job.Attempts >= job.MaxAttempts {
		return true, q.store.FailJob(ctx, job.ID, job.LeaseHolder, msg)
	}
	delay := q.Backoff(job.Attempts, cause)
	return false, q.store.RescheduleJob(ctx, job.ID, job.LeaseHolder, q.now().Add(delay), msg)
}

// Backoff returns the delay before attempt+1: BackoffBase * 2^(attempt-1)
// capped at BackoffMax. A rate-limited cause waits at least the rate-limit
// cooldown and the source Retry-After.
func (q *Queue) Backoff(attempt int, cause error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := q.backoffMax
	if exp := float64(q.backoffBase) * math.Pow(2, float64(attempt-1)); exp < float64(q.backoffMax) {
		delay = time.Duration(exp)
	}
	if source.Kind(cause) == source.KindRateLimit && q.cooldown > delay {
		delay = q.cooldown
	}
	if retryAfter, ok := source.RetryAfter(cause); ok && retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

// Retry requeues a failed job with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, id string) (*models.Job, error) {
	job, err := q.store.RetryJob(ctx, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrNoJob
	case errors.Is(err, database.ErrInvalidState):
		return nil, fmt.Errorf("%w: %v", ErrNotRetryable, err)
	}
	return job, err
}

// Get returns one job.
func (q *Queue) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := q.store.GetJob(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoJob
	}
	return job, err
}

// List returns jobs newest first.
func (q *Queue) List(ctx context.Context, filter database.JobFilter) ([]models.Job, error) {
	if filter.Family != "" && !knownFamily(filter.Family) {
		return nil, source.NewValidationError("family", "unknown job family %q", filter.Family)
	}
	return q.store.ListJobs(ctx, filter)
}

// Purge deletes finished jobs older than olderThan.
func (q *Queue) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	return q.store.PurgeJobs(ctx, q.now().Add(-olderThan))
}

// Stats counts jobs per family and status.
func (q *Queue) Stats(ctx context.Context) (models.JobStats, error) {
	return q.store.JobStats(ctx)
}

func knownFamily(family string) bool {
	for _, f := range models.Families {
		if f == family {
			return true
		}
	}
	return false
}
