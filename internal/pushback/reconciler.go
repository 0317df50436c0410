// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package pushback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/notify"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
)

// EntityType is the only entity type with a writable source.
const EntityType = "categories"

// Store is the persistence the reconciler needs. Implemented by *database.DB.
type Store interface {
	ListPending(ctx context.Context, tenantID, entityType string) ([]models.PendingOverride, error)
	CountPending(ctx context.Context, tenantID, entityType string) (int64, error)
	GetCategoryRecord(ctx context.Context, tenantID, id string) (*database.CategoryRecord, error)
	ApplyPushedCategory(ctx context.Context, tenantID, entityID string, fields []database.PushedField) (int64, error)
	RecordPushFailure(ctx context.Context, tenantID, entityID, message string) error
}

// Slots is the sync-state slot a run holds. Implemented by *syncstate.Tracker.
type Slots interface {
	Start(ctx context.Context, tenantID, entityType, syncType string) (string, error)
	Complete(ctx context.Context, syncID string, recordsSynced, errorCount int64) error
	Fail(ctx context.Context, syncID, message string) error
}

// WriterResolver returns the category writer of a tenant.
type WriterResolver func(tenantID string) (provider.CategoryWriter, error)

// ItemError is one entity the source refused or that could not be pushed.
type ItemError struct {
	EntityID string `json:"entityId"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// Result summarizes one run.
type Result struct {
	SyncID     string      `json:"syncId"`
	Updated    int         `json:"updated"`
	Failed     int         `json:"failed"`
	Remaining  int64       `json:"remaining"`
	Deleted    int64       `json:"deleted"`
	Errors     []ItemError `json:"errors"`
	Stopped    bool        `json:"stopped"`
	StopReason string      `json:"stopReason,omitempty"`

	// Err is the rate limit, outage or cancellation that stopped the run.
	Err error `json:"-"`
}

// Reconciler pushes pending overrides.
type Reconciler struct {
	store   Store
	slots   Slots
	writers WriterResolver
	events  notify.Publisher
	now     func() time.Time
}

// New creates a Reconciler. A nil publisher discards events.
func New(store Store, slots Slots, writers WriterResolver, events notify.Publisher) *Reconciler {
	if events == nil {
		events = notify.NopPublisher{}
	}
	return &Reconciler{store: store, slots: slots, writers: writers, events: events, now: time.Now}
}

type entityBatch struct {
	id   string
	rows []models.PendingOverride
}

// PushPending pushes every pending override of entityType for a tenant.
//
// It returns syncstate.ErrSyncAlreadyRunning when an inbound sync holds the
// slot. Per-item rejections and stops are reported in the Result, not as an
// error; the returned error is reserved for failures of the run itself.
func (r *Reconciler) PushPending(ctx context.Context, tenantID, entityType string) (Result, error) {
	res := Result{Errors: make([]ItemError, 0)}
	if entityType != EntityType {
		return res, source.NewValidationError("entityType", "push-back is not supported for %q", entityType)
	}

	writer, err := r.writers(tenantID)
	if err != nil {
		return res, fmt.Errorf("failed to resolve category writer: %w", err)
	}

	syncID, err := r.slots.Start(ctx, tenantID, entityType, models.SyncTypePushback)
	if err != nil {
		return res, err
	}
	res.SyncID = syncID
	ctx = logging.ContextWithSyncID(logging.ContextWithTenantID(ctx, tenantID), syncID)
	logger := logging.Ctx(ctx)
	start := r.now()

	pending, err := r.store.ListPending(ctx, tenantID, entityType)
	if err != nil {
		return res, r.abort(ctx, syncID, fmt.Errorf("failed to list pending overrides: %w", err))
	}

	for _, batch := range groupByEntity(pending) {
		if ctx.Err() != nil {
			r.stop(&res, ctx.Err())
			break
		}
		if err := r.pushEntity(ctx, tenantID, writer, batch, &res); err != nil {
			return res, r.abort(ctx, syncID, err)
		}
		if res.Stopped {
			break
		}
	}

	remaining, err := r.store.CountPending(context.WithoutCancel(ctx), tenantID, entityType)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to count remaining overrides")
	}
	res.Remaining = remaining
	metrics.RecordPushback(entityType, res.Updated, res.Failed)

	// The slot must be released even when ctx is what stopped the run.
	release := context.WithoutCancel(ctx)
	if res.Stopped {
		if err := r.slots.Fail(release, syncID, res.StopReason); err != nil && !errors.Is(err, syncstate.ErrSyncNotRunning) {
			logger.Warn().Err(err).Msg("failed to record stopped push-back")
		}
	} else if err := r.slots.Complete(release, syncID, int64(res.Updated), int64(res.Failed)); err != nil && !errors.Is(err, syncstate.ErrSyncNotRunning) {
		return res, fmt.Errorf("failed to complete push-back: %w", err)
	}

	logger.Info().
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int64("remaining", res.Remaining).
		Bool("stopped", res.Stopped).
		Dur("duration", r.now().Sub(start)).
		Msg("push-back finished")
	return res, nil
}

// pushEntity sends one entity and records the outcome on res. The returned
// error is a local failure that must abort the run.
func (r *Reconciler) pushEntity(ctx context.Context, tenantID string, writer provider.CategoryWriter, batch entityBatch, res *Result) error {
	logger := logging.Ctx(ctx)

	rec, err := r.store.GetCategoryRecord(ctx, tenantID, batch.id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return r.reject(ctx, tenantID, batch.id, source.NewValidationError("entityId", "category %s does not exist", batch.id), res)
	case err != nil:
		return fmt.Errorf("failed to load category %s: %w", batch.id, err)
	}
	if rec.SourceID == nil || *rec.SourceID == "" {
		return r.reject(ctx, tenantID, batch.id, source.NewValidationError("sourceId", "category %s is local-only", batch.id), res)
	}

	patch, err := buildPatch(batch.rows)
	if err != nil {
		return r.reject(ctx, tenantID, batch.id, err, res)
	}

	if err := writer.UpdateCategory(ctx, *rec.SourceID, patch); err != nil {
		if stopsRun(err) {
			r.stop(res, err)
			return nil
		}
		return r.reject(ctx, tenantID, batch.id, err, res)
	}

	fields := make([]database.PushedField, len(batch.rows))
	for i, row := range batch.rows {
		fields[i] = database.PushedField{Field: row.Field, Value: row.Value, Version: row.UpdatedAt}
	}
	// The source has accepted the write; the local fold must not be cut short.
	deleted, err := r.store.ApplyPushedCategory(context.WithoutCancel(ctx), tenantID, batch.id, fields)
	if err != nil {
		return fmt.Errorf("failed to apply pushed category %s: %w", batch.id, err)
	}
	res.Updated++
	res.Deleted += deleted

	logger.Debug().
		Str("entity_id", batch.id).
		Int("fields", len(fields)).
		Int64("deleted", deleted).
		Msg("pushed category")

	if err := r.events.Publish(ctx, notify.Event{
		Type:      notify.EventCategoryUpdated,
		TenantID:  tenantID,
		Timestamp: r.now().UTC(),
		Data:      map[string]any{"ids": []string{batch.id}, "pushed": true},
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to publish category update")
	}
	return nil
}

// reject records an item error and the failure on the pending rows.
func (r *Reconciler) reject(ctx context.Context, tenantID, entityID string, cause error, res *Result) error {
	res.Failed++
	res.Errors = append(res.Errors, ItemError{
		EntityID: entityID,
		Kind:     source.Kind(cause),
		Message:  cause.Error(),
	})
	logging.Ctx(ctx).Warn().Err(cause).Str("entity_id", entityID).Msg("push-back rejected")

	if err := r.store.RecordPushFailure(context.WithoutCancel(ctx), tenantID, entityID, cause.Error()); err != nil {
		return fmt.Errorf("failed to record push failure for %s: %w", entityID, err)
	}
	return nil
}

func (r *Reconciler) stop(res *Result, cause error) {
	res.Stopped = true
	res.Err = cause
	res.StopReason = cause.Error()
}

// abort releases the slot after a local failure and returns err.
func (r *Reconciler) abort(ctx context.Context, syncID string, err error) error {
	if failErr := r.slots.Fail(context.WithoutCancel(ctx), syncID, err.Error()); failErr != nil && !errors.Is(failErr, syncstate.ErrSyncNotRunning) {
		logging.Ctx(ctx).Warn().Err(failErr).Msg("failed to record push-back failure")
	}
	return err
}

// stopsRun reports whether err means no further writes should be issued.
func stopsRun(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch source.Kind(err) {
	case source.KindRateLimit, source.KindTransient:
		return true
	}
	return false
}

// groupByEntity keeps the entity order of rows, which ListPending sorts.
func groupByEntity(rows []models.PendingOverride) []entityBatch {
	var out []entityBatch
	for _, row := range rows {
		if n := len(out); n > 0 && out[n-1].id == row.EntityID {
			out[n-1].rows = append(out[n-1].rows, row)
			continue
		}
		out = append(out, entityBatch{id: row.EntityID, rows: []models.PendingOverride{row}})
	}
	return out
}

// buildPatch maps override fields onto the source category fields.
func buildPatch(rows []models.PendingOverride) (map[string]any, error) {
	patch := make(map[string]any, len(rows))
	for _, row := range rows {
		switch row.Field {
		case models.FieldName:
			var s string
			if err := json.Unmarshal(row.Value, &s); err != nil {
				return nil, source.NewValidationError(row.Field, "invalid stored value: %v", err)
			}
			patch["name"] = s
		case models.FieldImageRef:
			var s string
			if err := json.Unmarshal(row.Value, &s); err != nil {
				return nil, source.NewValidationError(row.Field, "invalid stored value: %v", err)
			}
			patch["image"] = s
		case models.FieldSortOrder:
			var n int64
			if err := json.Unmarshal(row.Value, &n); err != nil {
				return nil, source.NewValidationError(row.Field, "invalid stored value: %v", err)
			}
			patch["position"] = n
		case models.FieldVisible:
			var b bool
			if err := json.Unmarshal(row.Value, &b); err != nil {
				return nil, source.NewValidationError(row.Field, "invalid stored value: %v", err)
			}
			patch["active"] = b
		case models.FieldParentID:
			var id *string
			if err := json.Unmarshal(row.Value, &id); err != nil {
				return nil, source.NewValidationError(row.Field, "invalid stored value: %v", err)
			}
			patch["parentId"] = parentValue(id)
		default:
			return nil, source.NewValidationError("field", "%q cannot be pushed", row.Field)
		}
	}
	return patch, nil
}

// parentValue sends numeric source ids as numbers.
func parentValue(id *string) any {
	if id == nil || *id == "" {
		return nil
	}
	if n, err := strconv.ParseInt(*id, 10, 64); err == nil {
		return n
	}
	return *id
}
