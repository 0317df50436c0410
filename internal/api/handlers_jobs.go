// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"fmt"
	"net/http"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/jobs"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/models"
)

// ListJobs lists the caller's jobs, newest first.
//
// @Summary List jobs
// @Tags Jobs
// @Produce json
// @Param family query string false "inbound, outbound, notification, image or workflow"
// @Param status query string false "queued, running, succeeded or failed"
// @Param limit query int false "Maximum jobs (1-1000)" default(100)
// @Success 200 {object} APIResponse{data=[]models.Job}
// @Failure 400 {object} APIResponse
// @Security BearerAuth
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", defaultJobLimit, 1, maxJobLimit)
	if err != nil {
		writeError(rw, err)
		return
	}
	q := r.URL.Query()
	list, err := h.deps.Jobs.List(r.Context(), database.JobFilter{
		TenantID: tenant,
		Family:   q.Get("family"),
		Status:   q.Get("status"),
		Limit:    limit,
	})
	if err != nil {
		writeError(rw, err)
		return
	}
	if list == nil {
		list = []models.Job{}
	}
	rw.List(list, len(list))
}

// JobStats counts jobs per family and status.
//
// @Summary Job counts
// @Tags Jobs
// @Produce json
// @Success 200 {object} APIResponse{data=models.JobStats}
// @Security BearerAuth
// @Router /jobs/stats [get]
func (h *Handler) JobStats(w http.ResponseWriter, r *http.Request) {
	rw, _, ok := h.begin(w, r)
	if !ok {
		return
	}
	stats, err := h.deps.Jobs.Stats(r.Context())
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(stats)
}

// RetryJob requeues a failed job with a fresh attempt budget.
//
// @Summary Retry a failed job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} APIResponse{data=models.Job}
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse "Job is not failed"
// @Security BearerAuth
// @Router /jobs/{id}/retry [post]
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	rw, tenant, ok := h.begin(w, r)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	job, err := h.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		writeError(rw, err)
		return
	}
	if job.TenantID != tenant {
		writeError(rw, fmt.Errorf("%w: %s", jobs.ErrNoJob, id))
		return
	}

	job, err = h.deps.Jobs.Retry(r.Context(), id)
	if err != nil {
		writeError(rw, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("job_id", id).Str("type", job.Type).Msg("job retried by operator")
	rw.Success(job)
}
