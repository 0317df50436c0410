// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/logging"
)

func captureSubject(t *testing.T, m *Middleware, r *http.Request) (*AuthSubject, string, int) {
	t.Helper()
	var (
		got    *AuthSubject
		tenant string
	)
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SubjectFromContext(r.Context())
		tenant = logging.TenantIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return got, tenant, rec.Code
}

func TestMiddleware_NoneMode(t *testing.T) {
	t.Parallel()
	m, err := NewMiddleware(&config.SecurityConfig{AuthMode: "none", DefaultTenant: "acme"})
	if err != nil {
		t.Fatalf("NewMiddleware() error = %v", err)
	}
	subject, tenant, code := captureSubject(t, m, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if code != http.StatusNoContent {
		t.Fatalf("status = %d", code)
	}
	if subject == nil || !subject.HasRole(RoleAdmin) || subject.TenantID != "acme" || tenant != "acme" {
		t.Errorf("subject = %+v, tenant = %q", subject, tenant)
	}
}

func TestMiddleware_JWTMode(t *testing.T) {
	t.Parallel()
	m, err := NewMiddleware(testSecurity())
	if err != nil {
		t.Fatalf("NewMiddleware() error = %v", err)
	}
	token, _ := m.JWT().GenerateToken("ops", "globex", []string{RoleViewer})

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		target   string
		wantCode int
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "/api/v1/jobs", http.StatusNoContent},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, "/api/v1/jobs", http.StatusNoContent},
		{"query param", func(*http.Request) {}, "/api/v1/ws?access_token=" + token, http.StatusNoContent},
		{"missing", func(*http.Request) {}, "/api/v1/jobs", http.StatusUnauthorized},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9vOmJhcg==") }, "/api/v1/jobs", http.StatusUnauthorized},
		{"tampered", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token+"x") }, "/api/v1/jobs", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(r)
			subject, tenant, code := captureSubject(t, m, r)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d", code, tt.wantCode)
			}
			if tt.wantCode == http.StatusNoContent && (subject.ID != "ops" || tenant != "globex") {
				t.Errorf("subject = %+v, tenant = %q", subject, tenant)
			}
		})
	}
}

func TestNewMiddleware_Errors(t *testing.T) {
	t.Parallel()
	if _, err := NewMiddleware(&config.SecurityConfig{AuthMode: "jwt"}); err == nil {
		t.Error("jwt mode without a secret expected error")
	}
	if _, err := NewMiddleware(&config.SecurityConfig{AuthMode: "oidc"}); err == nil {
		t.Error("unknown mode expected error")
	}
}

func TestSubjectFromContext_Missing(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if s := SubjectFromContext(r.Context()); s != nil {
		t.Errorf("SubjectFromContext() = %+v, want nil", s)
	}
	var nilSubject *AuthSubject
	if nilSubject.HasRole(RoleAdmin) {
		t.Error("nil subject reports a role")
	}
}
