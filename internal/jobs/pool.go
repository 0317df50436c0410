// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/models"
)

// Handler executes one job. Returning an error hands the job back to the
// queue for a retry or a terminal failure.
type Handler func(ctx context.Context, job *models.Job) error

// Registry maps job types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler of jobType.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	r.handlers[jobType] = h
	r.mu.Unlock()
}

// Get returns the handler of jobType.
func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// PoolConfig configures one family pool.
type PoolConfig struct {
	Family        string
	Concurrency   int
	RatePerSecond float64 // 0 = unlimited
	Burst         int
	PollInterval  time.Duration
	LeaseDuration time.Duration
}

// PoolConfigs returns one pool config per family from the jobs section.
func PoolConfigs(cfg config.JobsConfig) []PoolConfig {
	families := []struct {
		name string
		fc   config.FamilyConfig
	}{
		{models.FamilyInbound, cfg.Inbound},
		{models.FamilyOutbound, cfg.Outbound},
		{models.FamilyNotification, cfg.Notification},
		{models.FamilyImage, cfg.Image},
		{models.FamilyWorkflow, cfg.Workflow},
	}
	out := make([]PoolConfig, 0, len(families))
	for _, f := range families {
		out = append(out, PoolConfig{
			Family:        f.name,
			Concurrency:   f.fc.Concurrency,
			RatePerSecond: f.fc.RatePerSecond,
			Burst:         f.fc.Burst,
			PollInterval:  cfg.PollInterval,
			LeaseDuration: cfg.LeaseDuration,
		})
	}
	return out
}

// Pool runs the jobs of one family. It implements suture.Service.
type Pool struct {
	cfg      PoolConfig
	queue    *Queue
	registry *Registry
	limiter  *rate.Limiter
	holderID string
}

// NewPool creates a pool for cfg.Family.
func NewPool(cfg PoolConfig, queue *Queue, registry *Registry) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 10 * time.Minute
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Pool{
		cfg:      cfg,
		queue:    queue,
		registry: registry,
		limiter:  limiter,
		holderID: fmt.Sprintf("%s-%s", cfg.Family, uuid.New().String()[:8]),
	}
}

// Family returns the family this pool serves.
func (p *Pool) Family() string { return p.cfg.Family }

// String implements fmt.Stringer for suture logging.
func (p *Pool) String() string { return "jobs-" + p.cfg.Family }

// Serve runs the workers until ctx is cancelled.
func (p *Pool) Serve(ctx context.Context) error {
	logging.Info().
		Str("family", p.cfg.Family).
		Int("concurrency", p.cfg.Concurrency).
		Float64("rate_per_second", p.cfg.RatePerSecond).
		Msg("job pool started")

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, fmt.Sprintf("%s-%d", p.holderID, worker))
		}(i)
	}
	wg.Wait()

	logging.Info().Str("family", p.cfg.Family).Msg("job pool stopped")
	return ctx.Err()
}

// work is one worker loop. Only ctx stops it.
func (p *Pool) work(ctx context.Context, holder string) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		ran, err := p.RunOnce(ctx, holder)
		if err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Str("family", p.cfg.Family).Msg("job worker error")
		}
		if ran {
			continue
		}

		timer := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce claims and executes at most one job as holder. It reports whether
// a job was claimed.
func (p *Pool) RunOnce(ctx context.Context, holder string) (bool, error) {
	job, err := p.queue.Claim(ctx, p.cfg.Family, holder, p.cfg.LeaseDuration)
	if errors.Is(err, ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	p.execute(ctx, job)
	return true, nil
}

func (p *Pool) execute(ctx context.Context, job *models.Job) {
	ctx = logging.ContextWithTenantID(ctx, job.TenantID)
	logger := logging.Ctx(ctx).With().
		Str("job_id", job.ID).
		Str("family", job.Family).
		Str("job_type", job.Type).
		Int("attempt", job.Attempts).
		Logger()
	start := time.Now()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopLease := p.keepLease(jobCtx, cancel, job)

	err := p.invoke(jobCtx, job)
	stopLease()
	duration := time.Since(start)

	// Outcome writes use a context that outlives shutdown so a finished job
	// is not redelivered.
	finish := context.WithoutCancel(ctx)
	if err == nil {
		if cErr := p.queue.Complete(finish, job); cErr != nil {
			logger.Warn().Err(cErr).Msg("failed to mark job succeeded")
		}
		metrics.RecordJob(job.Family, job.Type, "succeeded", duration)
		logger.Debug().Dur("duration", duration).Msg("job succeeded")
		return
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		metrics.RecordJobPanic(job.Family)
		logger.Error().Str("stack", panicErr.Stack).Interface("panic", panicErr.Value).Msg("job handler panicked")
	}

	terminal, fErr := p.queue.Fail(finish, job, err)
	if fErr != nil {
		if errors.Is(fErr, database.ErrLeaseLost) {
			logger.Warn().Err(err).Msg("job lease lost before failure was recorded")
		} else {
			logger.Error().Err(fErr).Msg("failed to record job failure")
		}
	}
	result := "retry"
	if terminal {
		result = "failed"
	}
	metrics.RecordJob(job.Family, job.Type, result, duration)
	logger.Warn().Err(err).Bool("terminal", terminal).Dur("duration", duration).Msg("job failed")
}

// invoke runs the handler, turning a panic into a PanicError.
func (p *Pool) invoke(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	h, ok := p.registry.Get(job.Type)
	if !ok {
		return &UnknownTypeError{Type: job.Type}
	}
	return h(ctx, job)
}

// keepLease extends the lease at a third of its duration until the returned
// stop func is called. A lost lease cancels the job.
func (p *Pool) keepLease(ctx context.Context, cancel context.CancelFunc, job *models.Job) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.cfg.LeaseDuration / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.Extend(ctx, job, p.cfg.LeaseDuration); err != nil {
					if errors.Is(err, database.ErrLeaseLost) {
						logging.Warn().Str("job_id", job.ID).Msg("job lease lost, cancelling")
						cancel()
						return
					}
					logging.Warn().Err(err).Str("job_id", job.ID).Msg("failed to extend job lease")
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job handler panicked: %v", e.Value)
}

// UnknownTypeError is returned for a job type with no registered handler.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no handler registered for job type %q", e.Type)
}
