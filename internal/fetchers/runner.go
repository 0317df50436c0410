// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package fetchers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
)

// DefaultPageSize is used when neither the descriptor nor the options set one.
const DefaultPageSize = 100

// Store persists raw rows.
type Store interface {
	EnsureRawTable(ctx context.Context, t database.RawTable) error
	UpsertRaw(ctx context.Context, t database.RawTable, row database.Row) error
	PurgeRaw(ctx context.Context, t database.RawTable, tenantID string) (int64, error)
}

// Tracker owns the sync-state slot of each run.
type Tracker interface {
	Start(ctx context.Context, tenantID, entityType, syncType string) (string, error)
	UpdateProgress(ctx context.Context, syncID string, recordsSynced int64)
	Complete(ctx context.Context, syncID string, recordsSynced, errorCount int64) error
	Fail(ctx context.Context, syncID, message string) error
	IsActive(ctx context.Context, syncID string) (bool, error)
	GetWatermark(ctx context.Context, tenantID, entityType string) (*time.Time, error)
}

// SourceResolver returns the record source serving domain for a tenant.
type SourceResolver func(tenantID, domain string) (provider.RecordSource, error)

// Hook runs after a successful walk, before the run is marked completed.
// A hook error is counted on the run but does not fail it.
type Hook func(ctx context.Context, tenantID string, d Descriptor, res Result) error

// Options configures a Runner.
type Options struct {
	PageSize  int
	PageDelay time.Duration
	Catalogue *Catalogue // nil = DefaultCatalogue
}

// Result summarizes one run.
type Result struct {
	SyncID     string        `json:"syncId"`
	TenantID   string        `json:"tenantId"`
	EntityType string        `json:"entityType"`
	SyncType   string        `json:"syncType"`
	Since      *time.Time    `json:"since,omitempty"`
	Pages      int           `json:"pages"`
	Records    int64         `json:"records"`
	Errors     int64         `json:"errors"`
	Cancelled  bool          `json:"cancelled,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Runner walks descriptors and writes the raw cache.
type Runner struct {
	store     Store
	tracker   Tracker
	resolve   SourceResolver
	catalogue *Catalogue
	pageSize  int
	pageDelay time.Duration

	mu    sync.RWMutex
	hooks map[string][]Hook
}

// NewRunner creates a Runner.
func NewRunner(store Store, tracker Tracker, resolve SourceResolver, opts Options) *Runner {
	catalogue := opts.Catalogue
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Runner{
		store:     store,
		tracker:   tracker,
		resolve:   resolve,
		catalogue: catalogue,
		pageSize:  pageSize,
		pageDelay: opts.PageDelay,
		hooks:     make(map[string][]Hook),
	}
}

// Catalogue returns the descriptors this runner serves.
func (r *Runner) Catalogue() *Catalogue {
	return r.catalogue
}

// OnComplete registers a post-sync hook for entityType.
func (r *Runner) OnComplete(entityType string, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[entityType] = append(r.hooks[entityType], hook)
}

// FullSync walks every page of entityType.
func (r *Runner) FullSync(ctx context.Context, tenantID, entityType string) (Result, error) {
	return r.Run(ctx, tenantID, entityType, models.SyncTypeFull)
}

// IncrementalSync reads records modified since the watermark. With no
// watermark it performs, and records, a full sync.
func (r *Runner) IncrementalSync(ctx context.Context, tenantID, entityType string) (Result, error) {
	return r.Run(ctx, tenantID, entityType, models.SyncTypeIncremental)
}

// Run performs one sync of entityType. It returns
// syncstate.ErrSyncAlreadyRunning when the slot is held.
func (r *Runner) Run(ctx context.Context, tenantID, entityType, syncType string) (Result, error) {
	d, ok := r.catalogue.Get(entityType)
	if !ok {
		return Result{}, source.NewValidationError("entityType", "unknown entity type %q", entityType)
	}
	switch syncType {
	case models.SyncTypeFull, models.SyncTypeIncremental, models.SyncTypeReference:
	default:
		return Result{}, source.NewValidationError("syncType", "unsupported sync type %q", syncType)
	}

	recorded := d.SyncTypeFor(syncType)
	var since *time.Time
	if recorded == models.SyncTypeIncremental {
		watermark, err := r.tracker.GetWatermark(ctx, tenantID, entityType)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read %s watermark: %w", entityType, err)
		}
		if watermark == nil {
			logging.Info().
				Str("tenant_id", tenantID).
				Str("entity_type", entityType).
				Msg("no watermark, falling back to full sync")
			recorded = models.SyncTypeFull
		} else {
			since = watermark
		}
	}
	return r.walk(ctx, tenantID, d, recorded, since)
}

// Purge deletes every cached row of entityType for the tenant.
func (r *Runner) Purge(ctx context.Context, tenantID, entityType string) (int64, error) {
	d, ok := r.catalogue.Get(entityType)
	if !ok {
		return 0, source.NewValidationError("entityType", "unknown entity type %q", entityType)
	}
	table := d.RawTable()
	if err := r.store.EnsureRawTable(ctx, table); err != nil {
		return 0, err
	}
	return r.store.PurgeRaw(ctx, table, tenantID)
}

func (r *Runner) walk(ctx context.Context, tenantID string, d Descriptor, syncType string, since *time.Time) (Result, error) {
	res := Result{TenantID: tenantID, EntityType: d.EntityType, SyncType: syncType, Since: since}

	src, err := r.resolve(tenantID, d.Domain)
	if err != nil {
		return res, fmt.Errorf("failed to resolve %s source: %w", d.Domain, err)
	}
	table := d.RawTable()
	if err := r.store.EnsureRawTable(ctx, table); err != nil {
		return res, err
	}

	syncID, err := r.tracker.Start(ctx, tenantID, d.EntityType, syncType)
	if err != nil {
		return res, err
	}
	res.SyncID = syncID
	start := time.Now()
	ctx = logging.ContextWithSyncID(logging.ContextWithTenantID(ctx, tenantID), syncID)
	logger := logging.Ctx(ctx)

	pageSize := d.PageSize
	if pageSize <= 0 {
		pageSize = r.pageSize
	}

	listErr := src.List(ctx, provider.ListRequest{
		Resource:      d.Resource,
		Pagination:    d.Pagination,
		PageSize:      pageSize,
		Delay:         r.pageDelay,
		ModifiedSince: since,
	}, func(page source.Page) error {
		res.Pages++
		if err := r.upsertPage(ctx, logger, tenantID, d, table, page.Records, &res); err != nil {
			return err
		}
		r.tracker.UpdateProgress(ctx, syncID, res.Records)

		logger.Debug().
			Str("entity_type", d.EntityType).
			Int("page", page.Number).
			Int("batch_size", len(page.Records)).
			Int64("total", res.Records).
			Msg("processed page")

		if !page.HasMore {
			return nil
		}
		active, err := r.tracker.IsActive(ctx, syncID)
		if err != nil {
			return fmt.Errorf("failed to check sync status: %w", err)
		}
		if !active {
			res.Cancelled = true
			return source.ErrStopPaging
		}
		return nil
	})
	res.Duration = time.Since(start)

	if listErr != nil {
		// The slot must be released even when ctx is what failed.
		failErr := r.tracker.Fail(context.WithoutCancel(ctx), syncID, listErr.Error())
		if failErr != nil && !errors.Is(failErr, syncstate.ErrSyncNotRunning) {
			logger.Warn().Err(failErr).Msg("failed to record sync failure")
		}
		return res, fmt.Errorf("%s sync failed: %w", d.EntityType, listErr)
	}
	if res.Cancelled {
		logger.Info().
			Str("entity_type", d.EntityType).
			Int64("records", res.Records).
			Int("pages", res.Pages).
			Msg("sync cancelled between pages")
		return res, nil
	}

	for _, hook := range r.hooksFor(d.EntityType) {
		if err := hook(ctx, tenantID, d, res); err != nil {
			res.Errors++
			logger.Warn().Err(err).Str("entity_type", d.EntityType).Msg("post-sync hook failed")
		}
	}

	if err := r.tracker.Complete(ctx, syncID, res.Records, res.Errors); err != nil {
		if errors.Is(err, syncstate.ErrSyncNotRunning) {
			res.Cancelled = true
			return res, nil
		}
		return res, fmt.Errorf("failed to complete %s sync: %w", d.EntityType, err)
	}
	return res, nil
}

// upsertPage writes each record of a page. Records that cannot be decoded
// or mapped are counted and skipped; store failures abort the run.
func (r *Runner) upsertPage(ctx context.Context, logger *zerolog.Logger, tenantID string, d Descriptor, table database.RawTable, records []json.RawMessage, res *Result) error {
	for _, raw := range records {
		rec, err := DecodeRecord(tenantID, d, raw)
		if err != nil {
			r.skipRecord(logger, d, "", err, res)
			continue
		}
		row, err := d.transform(rec)
		if err != nil {
			r.skipRecord(logger, d, rec.SourceID, err, res)
			continue
		}
		if err := r.store.UpsertRaw(ctx, table, row); err != nil {
			if errors.Is(err, database.ErrKindMismatch) {
				r.skipRecord(logger, d, rec.SourceID, err, res)
				continue
			}
			return err
		}
		res.Records++
	}
	return nil
}

func (r *Runner) skipRecord(logger *zerolog.Logger, d Descriptor, sourceID string, err error, res *Result) {
	res.Errors++
	logger.Warn().
		Err(err).
		Str("entity_type", d.EntityType).
		Str("source_id", sourceID).
		Msg("skipping record")
}

func (r *Runner) hooksFor(entityType string) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Hook(nil), r.hooks[entityType]...)
}
