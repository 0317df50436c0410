// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/fetchers"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/notify"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/pushback"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
)

// WorkflowNightlyReconcile runs a full sync, a push-back and a purge.
const WorkflowNightlyReconcile = "nightly_reconcile"

// DefaultRetention is how long finished jobs are kept when unset.
const DefaultRetention = 7 * 24 * time.Hour

// SyncRunner runs inbound syncs. Implemented by *fetchers.Runner.
type SyncRunner interface {
	Catalogue() *fetchers.Catalogue
	Run(ctx context.Context, tenantID, entityType, syncType string) (fetchers.Result, error)
}

// Pusher pushes pending overrides. Implemented by *pushback.Reconciler.
type Pusher interface {
	PushPending(ctx context.Context, tenantID, entityType string) (pushback.Result, error)
}

// ImageStore stores downloaded images. Implemented by *assets.Store.
type ImageStore interface {
	Fetch(ctx context.Context, src provider.AssetSource, tenantID, categoryID, path string) (bool, error)
	RunGC() error
}

// WebhookSender posts events. Implemented by *notify.Webhook.
type WebhookSender interface {
	Send(ctx context.Context, url string, event notify.Event) error
}

// Deps are the collaborators of the built-in handlers. Nil members disable
// the handlers that need them.
type Deps struct {
	Queue     *Queue
	Sync      SyncRunner
	Pushback  Pusher
	Events    notify.Publisher
	Images    ImageStore
	Assets    func(tenantID string) (provider.AssetSource, error)
	Webhook   WebhookSender
	Webhooks  func(tenantID string) string
	Retention time.Duration
}

// Step is one child job of a workflow.
type Step struct {
	Name    string
	Request func(tenantID string) EnqueueRequest
}

// Workflows are the named workflows the workflow handler knows.
var Workflows = map[string][]Step{
	WorkflowNightlyReconcile: {
		{Name: "full_sync", Request: func(tenantID string) EnqueueRequest {
			return EnqueueRequest{
				Family: models.FamilyInbound, Type: models.JobTypeSync, TenantID: tenantID,
				Payload:  models.SyncJobPayload{SyncType: models.SyncTypeFull},
				Priority: models.PriorityScheduled,
			}
		}},
		{Name: "pushback", Request: func(tenantID string) EnqueueRequest {
			return EnqueueRequest{
				Family: models.FamilyOutbound, Type: models.JobTypePushback, TenantID: tenantID,
				Payload:  models.PushbackJobPayload{EntityType: pushback.EntityType},
				Priority: models.PriorityScheduled,
			}
		}},
		{Name: "purge", Request: func(tenantID string) EnqueueRequest {
			return EnqueueRequest{
				Family: models.FamilyWorkflow, Type: models.JobTypePurge, TenantID: tenantID,
				Priority: models.PriorityLow,
			}
		}},
	},
}

// RegisterHandlers installs the built-in handlers on r.
func RegisterHandlers(r *Registry, d Deps) {
	if d.Events == nil {
		d.Events = notify.NopPublisher{}
	}
	if d.Retention <= 0 {
		d.Retention = DefaultRetention
	}
	h := &handlers{Deps: d}
	if d.Sync != nil {
		r.Register(models.JobTypeSync, h.sync)
	}
	if d.Pushback != nil {
		r.Register(models.JobTypePushback, h.pushback)
	}
	r.Register(models.JobTypeNotify, h.notify)
	if d.Images != nil && d.Assets != nil {
		r.Register(models.JobTypeImage, h.image)
	}
	if d.Queue != nil {
		r.Register(models.JobTypeWorkflow, h.workflow)
		r.Register(models.JobTypePurge, h.purge)
	}
}

type handlers struct {
	Deps
}

func decodePayload(job *models.Job, v any) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return source.NewValidationError("payload", "invalid %s payload: %v", job.Type, err)
	}
	return nil
}

// sync runs every selected entity type. A slot already held makes that
// entity a no-op; the run is the holder's.
func (h *handlers) sync(ctx context.Context, job *models.Job) error {
	var p models.SyncJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}
	if p.SyncType == "" {
		p.SyncType = models.SyncTypeIncremental
	}
	entityTypes, err := h.Sync.Catalogue().Select(p.SyncType, p.EntityTypes)
	if err != nil {
		return err
	}

	logger := logging.Ctx(ctx)
	results := make([]fetchers.Result, 0, len(entityTypes))
	var errs []error
	for _, entityType := range entityTypes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := h.Sync.Run(ctx, job.TenantID, entityType, p.SyncType)
		if errors.Is(err, syncstate.ErrSyncAlreadyRunning) {
			logger.Info().Str("entity_type", entityType).Str("job_id", job.ID).Msg("sync already running, skipping")
			continue
		}
		if err != nil {
			errs = append(errs, err)
			// Later entities would hit the same limit; the job reschedules past it.
			if source.Kind(err) == source.KindRateLimit {
				logger.Warn().Str("entity_type", entityType).Str("job_id", job.ID).Msg("source rate limited, stopping sync")
				break
			}
			continue
		}
		results = append(results, res)
	}

	if len(results) > 0 {
		h.enqueueNotify(ctx, job, notify.EventSyncCompleted, map[string]any{
			"jobId":    job.ID,
			"syncType": p.SyncType,
			"manual":   p.Manual,
			"results":  results,
		})
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// pushback pushes pending overrides. A stopped run returns its cause so the
// queue reschedules it, honoring any Retry-After.
func (h *handlers) pushback(ctx context.Context, job *models.Job) error {
	p := models.PushbackJobPayload{EntityType: pushback.EntityType}
	if err := decodePayload(job, &p); err != nil {
		return err
	}
	res, err := h.Pushback.PushPending(ctx, job.TenantID, p.EntityType)
	if err != nil {
		return err
	}
	if res.Updated > 0 || res.Failed > 0 {
		h.enqueueNotify(ctx, job, notify.EventCategoryUpdated, map[string]any{
			"jobId":     job.ID,
			"updated":   res.Updated,
			"failed":    res.Failed,
			"remaining": res.Remaining,
			"errors":    res.Errors,
		})
	}
	if res.Stopped {
		return res.Err
	}
	return nil
}

// notify publishes the event and posts it to the tenant webhook, if any.
func (h *handlers) notify(ctx context.Context, job *models.Job) error {
	var p models.NotifyJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}
	if p.EventType == "" {
		return source.NewValidationError("eventType", "notification has no event type")
	}
	event := notify.Event{
		Type:      p.EventType,
		TenantID:  job.TenantID,
		Timestamp: job.CreatedAt.UTC(),
		Data:      p.Data,
	}
	if err := h.Events.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", p.EventType, err)
	}
	if h.Webhook == nil || h.Webhooks == nil {
		return nil
	}
	url := h.Webhooks(job.TenantID)
	if url == "" {
		return nil
	}
	return h.Webhook.Send(ctx, url, event)
}

func (h *handlers) image(ctx context.Context, job *models.Job) error {
	var p models.ImageJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}
	if p.CategoryID == "" || p.Path == "" {
		return source.NewValidationError("payload", "image job needs a category and a path")
	}
	src, err := h.Assets(job.TenantID)
	if err != nil {
		return fmt.Errorf("failed to resolve asset source: %w", err)
	}
	_, err = h.Images.Fetch(ctx, src, job.TenantID, p.CategoryID, p.Path)
	return err
}

// workflow enqueues each step as a child job. Child dedupe keys derive from
// the workflow job id, so a redelivered workflow does not duplicate them.
func (h *handlers) workflow(ctx context.Context, job *models.Job) error {
	var p models.WorkflowJobPayload
	if err := decodePayload(job, &p); err != nil {
		return err
	}
	steps, ok := Workflows[p.Name]
	if !ok {
		return source.NewValidationError("name", "unknown workflow %q", p.Name)
	}
	logger := logging.Ctx(ctx)
	for _, step := range steps {
		req := step.Request(job.TenantID)
		req.DedupeKey = "workflow:" + job.ID + ":" + step.Name
		child, created, err := h.Queue.Enqueue(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to enqueue workflow step %s: %w", step.Name, err)
		}
		logger.Info().
			Str("workflow", p.Name).
			Str("step", step.Name).
			Str("child_job_id", child.ID).
			Bool("created", created).
			Msg("workflow step enqueued")
	}
	return nil
}

func (h *handlers) purge(ctx context.Context, job *models.Job) error {
	n, err := h.Queue.Purge(ctx, h.Retention)
	if err != nil {
		return err
	}
	if h.Images != nil {
		if err := h.Images.RunGC(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("asset GC failed")
		}
	}
	logging.Ctx(ctx).Info().Int64("purged", n).Dur("retention", h.Retention).Msg("purged finished jobs")
	return nil
}

// enqueueNotify hands a summary event to the notification family.
// Failures are logged; the parent job has already done its work.
func (h *handlers) enqueueNotify(ctx context.Context, job *models.Job, eventType string, data map[string]any) {
	if h.Queue == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to encode notification")
		return
	}
	if _, _, err := h.Queue.Enqueue(ctx, EnqueueRequest{
		Family:    models.FamilyNotification,
		Type:      models.JobTypeNotify,
		TenantID:  job.TenantID,
		Payload:   models.NotifyJobPayload{EventType: eventType, Data: raw},
		Priority:  models.PriorityNormal,
		DedupeKey: "notify:" + job.ID + ":" + eventType,
	}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to enqueue notification")
	}
}
