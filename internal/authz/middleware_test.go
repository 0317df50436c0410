// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package authz

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/fieldsync/internal/auth"
)

func TestMiddleware_Authorize(t *testing.T) {
	t.Parallel()
	m := NewMiddleware(setupEnforcer(t))
	h := m.Authorize(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		subject  *auth.AuthSubject
		method   string
		path     string
		wantCode int
	}{
		{"viewer reads", &auth.AuthSubject{ID: "v", Roles: []string{auth.RoleViewer}}, http.MethodGet, "/api/v1/sync/status", http.StatusNoContent},
		{"viewer triggers", &auth.AuthSubject{ID: "v", Roles: []string{auth.RoleViewer}}, http.MethodPost, "/api/v1/sync/trigger", http.StatusForbidden},
		{"operator retries", &auth.AuthSubject{ID: "o", Roles: []string{auth.RoleOperator}}, http.MethodPost, "/api/v1/jobs/j1/retry", http.StatusNoContent},
		{"operator purges", &auth.AuthSubject{ID: "o", Roles: []string{auth.RoleOperator}}, http.MethodDelete, "/api/v1/cache/customers", http.StatusForbidden},
		{"admin purges", &auth.AuthSubject{ID: "a", Roles: []string{auth.RoleAdmin}}, http.MethodDelete, "/api/v1/cache/customers", http.StatusNoContent},
		{"no subject", nil, http.MethodGet, "/api/v1/sync/status", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.subject != nil {
				r = r.WithContext(auth.ContextWithSubject(r.Context(), tt.subject))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestMiddleware_OnDenied(t *testing.T) {
	t.Parallel()
	m := NewMiddleware(setupEnforcer(t))
	var gotErr error
	m.OnDenied(func(w http.ResponseWriter, _ *http.Request, status int, err error) {
		gotErr = err
		w.WriteHeader(status)
	})
	h := m.Authorize(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
	r = r.WithContext(auth.ContextWithSubject(r.Context(), &auth.AuthSubject{ID: "v", Roles: []string{auth.RoleViewer}}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden || !errors.Is(gotErr, ErrForbidden) {
		t.Errorf("denied = %d, %v", rec.Code, gotErr)
	}
}

func TestMethodToAction(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		http.MethodGet:     "read",
		http.MethodHead:    "read",
		http.MethodPost:    "write",
		http.MethodPatch:   "write",
		http.MethodDelete:  "delete",
		http.MethodConnect: "read",
	}
	for method, want := range tests {
		if got := methodToAction(method); got != want {
			t.Errorf("methodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}
