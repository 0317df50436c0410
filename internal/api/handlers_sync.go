// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/fieldsync/internal/auth"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/pushback"
	"github.com/tomtom215/fieldsync/internal/scheduler"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
)

// Health values reported by /sync/status.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

const breakerOpen = "open"

// tenantID returns the caller's tenant.
func tenantID(r *http.Request) (string, error) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil || subject.TenantID == "" {
		return "", source.NewValidationError("tenant", "request has no tenant")
	}
	return subject.TenantID, nil
}

// begin writes the 503 or tenant error itself and returns ok=false.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request) (*ResponseWriter, string, bool) {
	rw := NewResponseWriter(w, r)
	if !h.deps.ready() {
		writeError(rw, ErrEngineUnavailable)
		return rw, "", false
	}
	tenant, err := tenantID(r)
	if err != nil {
		writeError(rw, err)
		return rw, "", false
	}
	return rw, tenant, true
}

// TriggerSync enqueues a manual sync.
//
// @Summary Trigger a manual sync
// @Description Enqueues a manual run at top priority. An identical queued or running trigger is returned instead of a duplicate.
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body TriggerRequest true "Sync type and optional entity types"
// @Success 202 {object} APIResponse{data=TriggerResponse}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse "A requested entity type is already syncing"
// @Security BearerAuth
// @Router /sync/trigger [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req TriggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, err)
		return
	}

	running, err := h.runningTypes(r.Context(), tenant, req)
	if err != nil {
		writeError(rw, err)
		return
	}
	if len(running) > 0 {
		rw.ErrorWithDetails(http.StatusConflict, ErrCodeConflict, syncstate.ErrSyncAlreadyRunning.Error(),
			map[string]interface{}{"entityTypes": running})
		return
	}

	jobID, err := h.deps.Scheduler.TriggerManual(r.Context(), tenant, req.SyncType, scheduler.Options{EntityTypes: req.Options.EntityTypes})
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Accepted(TriggerResponse{JobID: jobID})
}

// runningTypes returns the requested entity types whose slot is held.
func (h *Handler) runningTypes(ctx context.Context, tenant string, req TriggerRequest) ([]string, error) {
	var requested []string
	if req.SyncType == models.SyncTypePushback {
		requested = []string{pushback.EntityType}
	} else {
		sel, err := h.deps.Catalogue.Select(req.SyncType, req.Options.EntityTypes)
		if err != nil {
			return nil, err
		}
		requested = sel
	}

	states, err := h.deps.States.States(ctx, tenant)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(states))
	for _, s := range states {
		if s.Status == models.SyncStatusRunning {
			held[s.EntityType] = true
		}
	}
	var running []string
	for _, t := range requested {
		if held[t] {
			running = append(running, t)
		}
	}
	return running, nil
}

// CancelSync flips a running sync to cancelled.
//
// @Summary Cancel a running sync
// @Description The runner stops at its next page boundary. Cancelling an idle entity type reports cancelled=false.
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body CancelRequest true "Entity type"
// @Success 200 {object} APIResponse{data=CancelResponse}
// @Failure 400 {object} APIResponse
// @Security BearerAuth
// @Router /sync/cancel [post]
func (h *Handler) CancelSync(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, err)
		return
	}
	if _, err := h.deps.Catalogue.Select(models.SyncTypeFull, []string{req.EntityType}); err != nil {
		writeError(rw, err)
		return
	}

	syncID, err := h.deps.States.Cancel(r.Context(), tenant, req.EntityType)
	switch {
	case errors.Is(err, syncstate.ErrSyncNotRunning):
		rw.Success(CancelResponse{Cancelled: false})
	case err != nil:
		writeError(rw, err)
	default:
		logging.Ctx(r.Context()).Info().Str("entity_type", req.EntityType).Str("sync_id", syncID).Msg("sync cancelled by operator")
		rw.Success(CancelResponse{Cancelled: true, SyncID: syncID})
	}
}

// SyncStatus reports per-entity state and overall health.
//
// @Summary Sync status and health
// @Description health is down when the engine is uninitialized, the scheduler is stopped or a source circuit is open; degraded when an entity failed or its last run had errors.
// @Tags Sync
// @Produce json
// @Success 200 {object} APIResponse{data=StatusResponse}
// @Security BearerAuth
// @Router /sync/status [get]
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.deps.ready() {
		rw.Success(StatusResponse{Health: HealthDown, States: map[string]models.SyncState{}})
		return
	}
	tenant, err := tenantID(r)
	if err != nil {
		writeError(rw, err)
		return
	}

	states, err := h.deps.States.States(r.Context(), tenant)
	if err != nil {
		writeError(rw, err)
		return
	}
	resp := StatusResponse{States: make(map[string]models.SyncState, len(states))}
	for _, s := range states {
		resp.States[s.EntityType] = s
	}
	if h.deps.Breakers != nil {
		resp.Breakers, err = h.deps.Breakers.BreakerStates(tenant)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("failed to read breaker states")
		}
	}
	resp.Health = deriveHealth(h.deps.Scheduler.Running(), states, resp.Breakers)
	rw.Success(resp)
}

// deriveHealth folds scheduler, breaker and entity state into one value.
func deriveHealth(schedulerRunning bool, states []models.SyncState, breakers map[string]string) string {
	if !schedulerRunning {
		return HealthDown
	}
	for _, state := range breakers {
		if state == breakerOpen {
			return HealthDown
		}
	}
	for _, s := range states {
		if s.Status == models.SyncStatusFailed || s.ErrorCount > 0 {
			return HealthDegraded
		}
	}
	return HealthOK
}

// SyncHistory lists recent runs, newest first.
//
// @Summary Sync run history
// @Tags Sync
// @Produce json
// @Param limit query int false "Maximum runs (1-500)" default(50)
// @Param entityType query string false "Restrict to one entity type"
// @Success 200 {object} APIResponse{data=[]models.SyncRun}
// @Failure 400 {object} APIResponse
// @Security BearerAuth
// @Router /sync/history [get]
func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if err != nil {
		writeError(rw, err)
		return
	}
	runs, err := h.deps.States.History(r.Context(), tenant, r.URL.Query().Get("entityType"), limit)
	if err != nil {
		writeError(rw, err)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	rw.List(runs, len(runs))
}

// PurgeCache deletes the cached records of one entity type.
//
// @Summary Purge cached records
// @Tags Sync
// @Produce json
// @Param entityType path string true "Entity type"
// @Success 200 {object} APIResponse{data=PurgeResponse}
// @Failure 400 {object} APIResponse
// @Security BearerAuth
// @Router /cache/{entityType} [delete]
func (h *Handler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	entityType := urlParam(r, "entityType")
	n, err := h.deps.Cache.Purge(r.Context(), tenant, entityType)
	if err != nil {
		writeError(rw, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("entity_type", entityType).Int64("purged", n).Msg("cache purged")
	rw.Success(PurgeResponse{Purged: n})
}
