// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tomtom215/fieldsync/internal/logging"
)

type capturedIDs struct {
	chi, request, correlation string
}

func serveRequestID(t *testing.T, header string) (capturedIDs, *httptest.ResponseRecorder) {
	t.Helper()
	var got capturedIDs
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.chi = chimiddleware.GetReqID(r.Context())
		got.request = logging.RequestIDFromContext(r.Context())
		got.correlation = logging.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return got, rec
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	t.Parallel()
	got, rec := serveRequestID(t, "")

	responseID := rec.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(responseID); err != nil {
		t.Fatalf("response X-Request-ID %q is not a UUID: %v", responseID, err)
	}
	if got.chi != responseID || got.request != responseID {
		t.Errorf("context ids = %+v, want %s", got, responseID)
	}
	if got.correlation == "" {
		t.Error("correlation id not set")
	}
}

func TestRequestID_PreservesExistingID(t *testing.T) {
	t.Parallel()
	got, rec := serveRequestID(t, "upstream-123")
	if rec.Header().Get(RequestIDHeader) != "upstream-123" || got.request != "upstream-123" {
		t.Errorf("request id = %q / %q, want upstream-123", rec.Header().Get(RequestIDHeader), got.request)
	}
}

func TestRequestID_ReplacesOversizedID(t *testing.T) {
	t.Parallel()
	_, rec := serveRequestID(t, strings.Repeat("a", maxRequestIDLength+1))
	if _, err := uuid.Parse(rec.Header().Get(RequestIDHeader)); err != nil {
		t.Errorf("oversized id was not replaced: %q", rec.Header().Get(RequestIDHeader))
	}
}
