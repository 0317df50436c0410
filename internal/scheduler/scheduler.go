// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package scheduler enqueues recurring sync, push-back and purge jobs from
// 5-field cron patterns, and manual sync triggers.
//
// Schedules are registered in the schedules table on start. Each due slot is
// enqueued once per tenant with the dedupe key schedule:<name>:<tenant>:<slot>,
// so a restart or a second replica ticking the same slot does not double it.
// Slots missed while the service was down collapse into one run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/jobs"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/pushback"
	"github.com/tomtom215/fieldsync/internal/source"
)

// Built-in schedule names.
const (
	ScheduleIncremental = "incremental"
	ScheduleFull        = "full"
	ScheduleReference   = "reference"
	SchedulePushback    = "pushback"
	SchedulePurge       = "purge"
)

// slotLayout formats a due slot inside dedupe keys.
const slotLayout = "200601021504"

// Store persists schedule registrations. Implemented by *database.DB.
type Store interface {
	ReplaceSchedules(ctx context.Context, schedules []models.Schedule) error
	ListSchedules(ctx context.Context) ([]models.Schedule, error)
	MarkScheduleRun(ctx context.Context, name string, ranAt, next time.Time) error
}

// Enqueuer adds jobs. Implemented by *jobs.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, req jobs.EnqueueRequest) (*models.Job, bool, error)
}

// Options narrow a manual trigger.
type Options struct {
	EntityTypes []string `json:"entityTypes,omitempty"`
}

type entry struct {
	builtin
	cron *Cron
	next time.Time
}

// Scheduler ticks the registered schedules. It implements suture.Service.
type Scheduler struct {
	store   Store
	queue   Enqueuer
	tenants []string
	cfg     config.SchedulesConfig
	loc     *time.Location
	now     func() time.Time

	mu      sync.Mutex
	entries []*entry
	running bool
}

// New parses the configured patterns. An empty pattern leaves its schedule
// out; an invalid one is an error.
func New(cfg config.SchedulesConfig, store Store, queue Enqueuer, tenants []string) (*Scheduler, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid schedules timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	s := &Scheduler{
		store:   store,
		queue:   queue,
		tenants: tenants,
		cfg:     cfg,
		loc:     loc,
		now:     time.Now,
	}
	for _, b := range builtins(cfg) {
		if strings.TrimSpace(b.pattern) == "" {
			continue
		}
		c, err := ParseCron(b.pattern)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", b.name, err)
		}
		s.entries = append(s.entries, &entry{builtin: b, cron: c})
	}
	return s, nil
}

type builtin struct {
	name     string
	pattern  string
	jobType  string
	syncType string
	request  func(tenantID string) jobs.EnqueueRequest
}

func builtins(cfg config.SchedulesConfig) []builtin {
	syncJob := func(syncType string) func(string) jobs.EnqueueRequest {
		return func(tenantID string) jobs.EnqueueRequest {
			return jobs.EnqueueRequest{
				Family: models.FamilyInbound, Type: models.JobTypeSync, TenantID: tenantID,
				Payload:  models.SyncJobPayload{SyncType: syncType},
				Priority: models.PriorityScheduled,
			}
		}
	}
	return []builtin{
		{ScheduleIncremental, cfg.Incremental, models.JobTypeSync, models.SyncTypeIncremental, syncJob(models.SyncTypeIncremental)},
		{ScheduleFull, cfg.Full, models.JobTypeSync, models.SyncTypeFull, syncJob(models.SyncTypeFull)},
		{ScheduleReference, cfg.Reference, models.JobTypeSync, models.SyncTypeReference, syncJob(models.SyncTypeReference)},
		{SchedulePushback, cfg.Pushback, models.JobTypePushback, models.SyncTypePushback, func(tenantID string) jobs.EnqueueRequest {
			return jobs.EnqueueRequest{
				Family: models.FamilyOutbound, Type: models.JobTypePushback, TenantID: tenantID,
				Payload:  models.PushbackJobPayload{EntityType: pushback.EntityType},
				Priority: models.PriorityScheduled,
			}
		}},
		{SchedulePurge, cfg.Purge, models.JobTypePurge, "", func(tenantID string) jobs.EnqueueRequest {
			return jobs.EnqueueRequest{
				Family: models.FamilyWorkflow, Type: models.JobTypePurge, TenantID: tenantID,
				Priority: models.PriorityLow,
			}
		}},
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string { return "scheduler" }

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error { return s.Start(ctx) }

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start registers the schedules, then ticks until ctx is cancelled. With
// schedules disabled the registrations are written but nothing fires.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.Register(ctx); err != nil {
		return err
	}

	logger := logging.WithComponent("scheduler")
	if !s.cfg.Enabled {
		logger.Info().Msg("schedules disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	logger.Info().
		Int("schedules", len(s.entries)).
		Int("tenants", len(s.tenants)).
		Dur("tick_interval", s.cfg.TickInterval).
		Str("timezone", s.loc.String()).
		Msg("scheduler started")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Register removes schedule rows that are no longer configured and upserts
// the current set. A kept schedule whose pattern is unchanged keeps its
// stored next run.
func (s *Scheduler) Register(ctx context.Context) error {
	now := s.now()
	s.mu.Lock()
	rows := make([]models.Schedule, 0, len(s.entries))
	for _, e := range s.entries {
		next := e.cron.Next(now, s.loc).UTC()
		rows = append(rows, models.Schedule{
			Name:      e.name,
			Cron:      e.cron.String(),
			JobType:   e.jobType,
			SyncType:  e.syncType,
			Enabled:   s.cfg.Enabled,
			NextRunAt: &next,
		})
	}
	s.mu.Unlock()

	if err := s.store.ReplaceSchedules(ctx, rows); err != nil {
		return fmt.Errorf("failed to register schedules: %w", err)
	}
	stored, err := s.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	byName := make(map[string]models.Schedule, len(stored))
	for _, row := range stored {
		byName[row.Name] = row
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if row, ok := byName[e.name]; ok && row.NextRunAt != nil {
			e.next = *row.NextRunAt
		} else {
			e.next = e.cron.Next(now, s.loc)
		}
	}
	return nil
}

// Tick enqueues every schedule whose next run is due, for every tenant, and
// advances it past now.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	due := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.next.IsZero() && !e.next.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, e, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry, now time.Time) {
	s.mu.Lock()
	slot := e.next
	s.mu.Unlock()

	logger := logging.Ctx(ctx).With().Str("schedule", e.name).Time("slot", slot).Logger()
	for _, tenantID := range s.tenants {
		req := e.request(tenantID)
		req.DedupeKey = fmt.Sprintf("schedule:%s:%s:%s", e.name, tenantID, slot.UTC().Format(slotLayout))
		job, created, err := s.queue.Enqueue(ctx, req)
		switch {
		case err != nil:
			metrics.RecordScheduleFire(e.name, "error")
			logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to enqueue scheduled job")
			continue
		case created:
			metrics.RecordScheduleFire(e.name, "enqueued")
		default:
			metrics.RecordScheduleFire(e.name, "deduplicated")
		}
		logger.Debug().Str("tenant_id", tenantID).Str("job_id", job.ID).Bool("created", created).Msg("scheduled job enqueued")
	}

	next := e.cron.Next(now, s.loc)
	s.mu.Lock()
	e.next = next
	s.mu.Unlock()
	if err := s.store.MarkScheduleRun(ctx, e.name, now, next); err != nil {
		logger.Warn().Err(err).Msg("failed to record schedule run")
	}
}

// NextRuns returns the next due time of each schedule by name.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for _, e := range s.entries {
		out[e.name] = e.next
	}
	return out
}

// TriggerManual enqueues an operator-requested run at manual priority and
// returns the job id. An identical manual request still queued or running
// returns that job instead of adding another.
func (s *Scheduler) TriggerManual(ctx context.Context, tenantID, syncType string, opts Options) (string, error) {
	if tenantID == "" {
		return "", source.NewValidationError("tenantId", "tenant is required")
	}

	var req jobs.EnqueueRequest
	switch syncType {
	case models.SyncTypeFull, models.SyncTypeIncremental, models.SyncTypeReference:
		req = jobs.EnqueueRequest{
			Family: models.FamilyInbound, Type: models.JobTypeSync, TenantID: tenantID,
			Payload: models.SyncJobPayload{EntityTypes: opts.EntityTypes, SyncType: syncType, Manual: true},
		}
	case models.SyncTypePushback:
		req = jobs.EnqueueRequest{
			Family: models.FamilyOutbound, Type: models.JobTypePushback, TenantID: tenantID,
			Payload: models.PushbackJobPayload{EntityType: pushback.EntityType},
		}
	default:
		return "", source.NewValidationError("syncType", "unknown sync type %q", syncType)
	}
	req.Priority = models.PriorityManual

	entityTypes := append([]string(nil), opts.EntityTypes...)
	sort.Strings(entityTypes)
	req.DedupeKey = fmt.Sprintf("manual:%s:%s:%s", tenantID, syncType, strings.Join(entityTypes, ","))

	job, created, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue manual %s sync: %w", syncType, err)
	}
	logging.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Str("sync_type", syncType).
		Strs("entity_types", opts.EntityTypes).
		Bool("created", created).
		Msg("manual sync triggered")
	return job.ID, nil
}
