// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package syncstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/notify"
)

// DefaultStaleAfter is how long a running slot may go without a heartbeat
// before a new start treats it as abandoned.
const DefaultStaleAfter = 2 * time.Hour

var (
	// ErrSyncAlreadyRunning is returned by Start when the slot is held by a
	// live sync.
	ErrSyncAlreadyRunning = errors.New("sync already running")

	// ErrSyncNotRunning is returned when a sync id no longer holds its slot
	// (completed, failed, cancelled or displaced).
	ErrSyncNotRunning = errors.New("sync is not running")
)

// Store is the persistence the tracker needs. Implemented by *database.DB.
type Store interface {
	ClaimSyncSlot(ctx context.Context, tenantID, entityType, syncType, syncID string, staleBefore time.Time) (database.SlotClaim, error)
	UpdateSyncProgress(ctx context.Context, syncID string, recordsSynced int64) (bool, error)
	UpdateRunProgress(ctx context.Context, syncID string, recordsSynced int64) error
	CompleteSync(ctx context.Context, syncID string, recordsSynced, errorCount int64) (bool, error)
	FailSync(ctx context.Context, syncID, message string) (bool, error)
	CancelSync(ctx context.Context, tenantID, entityType string) (string, error)
	IsSyncActive(ctx context.Context, syncID string) (bool, error)
	GetSyncState(ctx context.Context, tenantID, entityType string) (*models.SyncState, error)
	GetSyncStateBySyncID(ctx context.Context, syncID string) (*models.SyncState, error)
	ListSyncStates(ctx context.Context, tenantID string) ([]models.SyncState, error)
	ListSyncRuns(ctx context.Context, tenantID, entityType string, limit int) ([]models.SyncRun, error)
}

// Tracker owns the per-(tenant, entity type) sync slot. Inbound syncs and
// push-back take the same slot, so they never overlap for one entity type.
type Tracker struct {
	store      Store
	events     notify.Publisher
	staleAfter time.Duration
	now        func() time.Time
	newID      func() string
}

// New creates a tracker. A nil publisher discards events; a non-positive
// staleAfter uses DefaultStaleAfter.
func New(store Store, events notify.Publisher, staleAfter time.Duration) *Tracker {
	if events == nil {
		events = notify.NopPublisher{}
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		store:      store,
		events:     events,
		staleAfter: staleAfter,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Start claims the slot and returns a fresh sync id. A slot held by a live
// sync is refused with ErrSyncAlreadyRunning; a slot whose holder has been
// silent for longer than the stale window is taken over and the old run is
// recorded as abandoned.
func (t *Tracker) Start(ctx context.Context, tenantID, entityType, syncType string) (string, error) {
	syncID := t.newID()
	claim, err := t.store.ClaimSyncSlot(ctx, tenantID, entityType, syncType, syncID, t.now().Add(-t.staleAfter))
	if err != nil {
		return "", fmt.Errorf("failed to claim sync slot: %w", err)
	}
	if !claim.Acquired {
		return "", fmt.Errorf("%w: %s/%s is held by sync %s", ErrSyncAlreadyRunning, tenantID, entityType, claim.HolderSyncID)
	}

	if claim.AbandonedSyncID != "" {
		logging.Warn().
			Str("tenant_id", tenantID).
			Str("entity_type", entityType).
			Str("abandoned_sync_id", claim.AbandonedSyncID).
			Str("sync_id", syncID).
			Msg("took over stale sync slot")
	}
	logging.Info().
		Str("tenant_id", tenantID).
		Str("entity_type", entityType).
		Str("sync_type", syncType).
		Str("sync_id", syncID).
		Msg("sync started")

	t.publish(ctx, notify.EventSyncStarted, tenantID, map[string]any{
		"syncId":     syncID,
		"entityType": entityType,
		"syncType":   syncType,
	})
	return syncID, nil
}

// UpdateProgress records progress and refreshes the slot heartbeat. It is
// best-effort: failures are logged and swallowed.
func (t *Tracker) UpdateProgress(ctx context.Context, syncID string, recordsSynced int64) {
	ok, err := t.store.UpdateSyncProgress(ctx, syncID, recordsSynced)
	if err != nil {
		logging.Warn().Err(err).Str("sync_id", syncID).Msg("failed to record sync progress")
		return
	}
	if !ok {
		return
	}
	if err := t.store.UpdateRunProgress(ctx, syncID, recordsSynced); err != nil {
		logging.Warn().Err(err).Str("sync_id", syncID).Msg("failed to record run progress")
	}

	state, err := t.store.GetSyncStateBySyncID(ctx, syncID)
	if err != nil {
		return
	}
	t.publish(ctx, notify.EventSyncProgress, state.TenantID, map[string]any{
		"syncId":        syncID,
		"entityType":    state.EntityType,
		"recordsSynced": recordsSynced,
	})
}

// Complete marks the sync completed and stamps the watermark for its type.
func (t *Tracker) Complete(ctx context.Context, syncID string, recordsSynced, errorCount int64) error {
	state, err := t.runningState(ctx, syncID)
	if err != nil {
		return err
	}
	ok, err := t.store.CompleteSync(ctx, syncID, recordsSynced, errorCount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSyncNotRunning
	}

	duration := t.elapsed(state)
	metrics.RecordSync(state.EntityType, state.SyncType, models.SyncStatusCompleted, duration, recordsSynced, errorCount)
	logging.Info().
		Str("tenant_id", state.TenantID).
		Str("entity_type", state.EntityType).
		Str("sync_id", syncID).
		Int64("records", recordsSynced).
		Int64("errors", errorCount).
		Dur("duration", duration).
		Msg("sync completed")

	t.publish(ctx, notify.EventSyncCompleted, state.TenantID, map[string]any{
		"syncId":        syncID,
		"entityType":    state.EntityType,
		"syncType":      state.SyncType,
		"recordsSynced": recordsSynced,
		"errorCount":    errorCount,
	})
	return nil
}

// Fail marks the sync failed and keeps the error message.
func (t *Tracker) Fail(ctx context.Context, syncID, message string) error {
	state, err := t.runningState(ctx, syncID)
	if err != nil {
		return err
	}
	ok, err := t.store.FailSync(ctx, syncID, message)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSyncNotRunning
	}

	metrics.RecordSync(state.EntityType, state.SyncType, models.SyncStatusFailed, t.elapsed(state), state.RecordsSynced, 1)
	logging.Warn().
		Str("tenant_id", state.TenantID).
		Str("entity_type", state.EntityType).
		Str("sync_id", syncID).
		Str("error", message).
		Msg("sync failed")

	t.publish(ctx, notify.EventSyncFailed, state.TenantID, map[string]any{
		"syncId":     syncID,
		"entityType": state.EntityType,
		"syncType":   state.SyncType,
		"error":      message,
	})
	return nil
}

// Cancel flips a running slot to cancelled. The runner notices on its next
// IsActive poll. It returns the cancelled sync id, or "" when nothing ran.
func (t *Tracker) Cancel(ctx context.Context, tenantID, entityType string) (string, error) {
	syncID, err := t.store.CancelSync(ctx, tenantID, entityType)
	if err != nil {
		return "", err
	}
	if syncID == "" {
		return "", nil
	}

	logging.Info().
		Str("tenant_id", tenantID).
		Str("entity_type", entityType).
		Str("sync_id", syncID).
		Msg("sync cancelled")
	t.publish(ctx, notify.EventSyncFailed, tenantID, map[string]any{
		"syncId":     syncID,
		"entityType": entityType,
		"status":     models.SyncStatusCancelled,
	})
	return syncID, nil
}

// IsActive reports whether syncID still holds a running slot.
func (t *Tracker) IsActive(ctx context.Context, syncID string) (bool, error) {
	return t.store.IsSyncActive(ctx, syncID)
}

// GetWatermark returns LastIncrementalSyncAt, else LastFullSyncAt, else nil.
func (t *Tracker) GetWatermark(ctx context.Context, tenantID, entityType string) (*time.Time, error) {
	state, err := t.store.GetSyncState(ctx, tenantID, entityType)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state.Watermark(), nil
}

// State returns the slot row, or database.ErrNotFound.
func (t *Tracker) State(ctx context.Context, tenantID, entityType string) (*models.SyncState, error) {
	return t.store.GetSyncState(ctx, tenantID, entityType)
}

// States returns every slot row for a tenant.
func (t *Tracker) States(ctx context.Context, tenantID string) ([]models.SyncState, error) {
	return t.store.ListSyncStates(ctx, tenantID)
}

// History returns the most recent runs, newest first. An empty entityType
// lists every type.
func (t *Tracker) History(ctx context.Context, tenantID, entityType string, limit int) ([]models.SyncRun, error) {
	return t.store.ListSyncRuns(ctx, tenantID, entityType, limit)
}

func (t *Tracker) runningState(ctx context.Context, syncID string) (*models.SyncState, error) {
	state, err := t.store.GetSyncStateBySyncID(ctx, syncID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSyncNotRunning
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (t *Tracker) elapsed(state *models.SyncState) time.Duration {
	if state.StartedAt == nil {
		return 0
	}
	return t.now().Sub(*state.StartedAt)
}

// publish sends an event and logs delivery failures.
func (t *Tracker) publish(ctx context.Context, eventType, tenantID string, data map[string]any) {
	err := t.events.Publish(ctx, notify.Event{
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: t.now().UTC(),
		Data:      data,
	})
	if err != nil {
		logging.Debug().Err(err).Str("event_type", eventType).Msg("failed to publish sync event")
	}
}
