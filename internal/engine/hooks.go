// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package engine

import (
	"context"
	"fmt"

	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/fetchers"
	"github.com/tomtom215/fieldsync/internal/jobs"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/models"
)

// categoryRefresher is the part of *categories.Service the hook uses.
type categoryRefresher interface {
	RefreshFromRaw(ctx context.Context, tenantID string) (int64, error)
	ImageRefs(ctx context.Context, tenantID string) ([]categories.ImageRef, error)
}

// enqueuer is the part of *jobs.Queue the hook uses.
type enqueuer interface {
	Enqueue(ctx context.Context, req jobs.EnqueueRequest) (*models.Job, bool, error)
}

// categoriesHook rebuilds the master categories after a categories sync and,
// when enabled, queues one image download per referenced image. Image jobs
// dedupe on category and path, so unchanged images are queued once.
func categoriesHook(svc categoryRefresher, queue enqueuer, downloadImages bool) fetchers.Hook {
	return func(ctx context.Context, tenantID string, _ fetchers.Descriptor, res fetchers.Result) error {
		logger := logging.Ctx(ctx)
		n, err := svc.RefreshFromRaw(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to refresh master categories: %w", err)
		}
		logger.Info().Int64("categories", n).Str("sync_id", res.SyncID).Msg("master categories refreshed")

		if !downloadImages || queue == nil {
			return nil
		}
		refs, err := svc.ImageRefs(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to list category images: %w", err)
		}
		queued := 0
		for _, ref := range refs {
			_, created, err := queue.Enqueue(ctx, jobs.EnqueueRequest{
				Family:    models.FamilyImage,
				Type:      models.JobTypeImage,
				TenantID:  tenantID,
				Payload:   models.ImageJobPayload{CategoryID: ref.CategoryID, Path: ref.Path},
				Priority:  models.PriorityLow,
				DedupeKey: "image:" + tenantID + ":" + ref.CategoryID + ":" + ref.Path,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue image job for %s: %w", ref.CategoryID, err)
			}
			if created {
				queued++
			}
		}
		if queued > 0 {
			logger.Info().Int("images", queued).Msg("image downloads queued")
		}
		return nil
	}
}
