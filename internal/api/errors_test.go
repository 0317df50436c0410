// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/jobs"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
	"github.com/tomtom215/fieldsync/internal/validation"
)

func TestWriteError(t *testing.T) {
	t.Parallel()

	type request struct {
		Name string `validate:"required"`
	}

	tests := []struct {
		name           string
		err            error
		wantStatus     int
		wantCode       string
		wantRetryAfter string
	}{
		{"request validation", validation.ValidateStruct(&request{}), http.StatusBadRequest, ErrCodeValidationFailed, ""},
		{"source validation", source.NewValidationError("field", "bad"), http.StatusBadRequest, ErrCodeValidationFailed, ""},
		{"engine unavailable", ErrEngineUnavailable, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, ""},
		{"category not found", fmt.Errorf("%w: c1", categories.ErrNotFound), http.StatusNotFound, ErrCodeNotFound, ""},
		{"job not found", jobs.ErrNoJob, http.StatusNotFound, ErrCodeNotFound, ""},
		{"record not found", database.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, ""},
		{"slot held", syncstate.ErrSyncAlreadyRunning, http.StatusConflict, ErrCodeConflict, ""},
		{"not retryable", jobs.ErrNotRetryable, http.StatusConflict, ErrCodeConflict, ""},
		{"source conflict", &source.ConflictError{Op: "PATCH /categories/1", StatusCode: 409}, http.StatusConflict, ErrCodeConflict, ""},
		{"rate limit", &source.RateLimitError{Op: "GET /customers", Attempts: 5, RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, ErrCodeTooManyRequests, "2"},
		{"transient", &source.TransientSourceError{Op: "GET /jobs", StatusCode: 503}, http.StatusBadGateway, ErrCodeExternalServiceFail, ""},
		{"permanent", &source.PermanentSourceError{Op: "GET /jobs", StatusCode: 400}, http.StatusBadGateway, ErrCodeExternalServiceFail, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			rw := NewResponseWriter(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			writeError(rw, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decodeEnvelope(t, rec, nil)
			if env.Success || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.wantRetryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetryAfter)
			}
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	writeError(rw, errors.New("password=hunter2"))

	env := decodeEnvelope(t, rec, nil)
	if env.Error.Message != "An internal error occurred" {
		t.Errorf("message = %q, leaked detail", env.Error.Message)
	}
}
