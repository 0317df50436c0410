// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/jobs"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/source"
)

func TestListJobs(t *testing.T) {
	t.Parallel()

	deps := testDeps()
	var got database.JobFilter
	deps.Jobs = &mockJobs{listFn: func(_ context.Context, filter database.JobFilter) ([]models.Job, error) {
		got = filter
		return []models.Job{{ID: "j1", Family: models.FamilyInbound, Status: models.JobStatusFailed}}, nil
	}}
	h := NewHandler(deps, nil)

	rec := serve(t, h.ListJobs, http.MethodGet, "/api/v1/jobs?family=inbound&status=failed&limit=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := database.JobFilter{TenantID: testTenant, Family: "inbound", Status: "failed", Limit: 10}
	if got != want {
		t.Errorf("filter = %+v, want %+v", got, want)
	}
	var list []models.Job
	decodeEnvelope(t, rec, &list)
	if len(list) != 1 || list[0].ID != "j1" {
		t.Errorf("jobs = %+v", list)
	}
}

func TestListJobs_BadFilter(t *testing.T) {
	t.Parallel()

	deps := testDeps()
	deps.Jobs = &mockJobs{listFn: func(_ context.Context, filter database.JobFilter) ([]models.Job, error) {
		return nil, source.NewValidationError("family", "unknown family %q", filter.Family)
	}}
	h := NewHandler(deps, nil)

	if rec := serve(t, h.ListJobs, http.MethodGet, "/api/v1/jobs?family=bogus", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad family: status = %d, want 400", rec.Code)
	}
	if rec := serve(t, h.ListJobs, http.MethodGet, "/api/v1/jobs?limit=5000", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", rec.Code)
	}
}

func TestJobStats(t *testing.T) {
	t.Parallel()

	deps := testDeps()
	deps.Jobs = &mockJobs{statsFn: func(context.Context) (models.JobStats, error) {
		return models.JobStats{models.FamilyInbound: {models.JobStatusQueued: 3}}, nil
	}}
	h := NewHandler(deps, nil)

	rec := serve(t, h.JobStats, http.MethodGet, "/api/v1/jobs/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats models.JobStats
	decodeEnvelope(t, rec, &stats)
	if stats[models.FamilyInbound][models.JobStatusQueued] != 3 {
		t.Errorf("stats = %v", stats)
	}
}

func TestRetryJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		job        *models.Job
		getErr     error
		retryErr   error
		wantStatus int
		wantRetry  bool
	}{
		{
			name:       "failed job",
			job:        &models.Job{ID: "j1", TenantID: testTenant, Status: models.JobStatusFailed},
			wantStatus: http.StatusOK,
			wantRetry:  true,
		},
		{
			name:       "unknown job",
			getErr:     fmt.Errorf("%w: j1", jobs.ErrNoJob),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "other tenant",
			job:        &models.Job{ID: "j1", TenantID: "tenant-b", Status: models.JobStatusFailed},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "not failed",
			job:        &models.Job{ID: "j1", TenantID: testTenant, Status: models.JobStatusRunning},
			retryErr:   jobs.ErrNotRetryable,
			wantStatus: http.StatusConflict,
			wantRetry:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			retried := false
			deps := testDeps()
			deps.Jobs = &mockJobs{
				getFn: func(context.Context, string) (*models.Job, error) {
					return tt.job, tt.getErr
				},
				retryFn: func(_ context.Context, id string) (*models.Job, error) {
					retried = true
					if tt.retryErr != nil {
						return nil, tt.retryErr
					}
					return &models.Job{ID: id, TenantID: testTenant, Status: models.JobStatusQueued}, nil
				},
			}
			h := NewHandler(deps, nil)

			rec := serve(t, h.RetryJob, http.MethodPost, "/api/v1/jobs/j1/retry", "", map[string]string{"id": "j1"})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if retried != tt.wantRetry {
				t.Errorf("retried = %v, want %v", retried, tt.wantRetry)
			}
		})
	}
}
