// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/logging"
)

// anonymousID is the subject id used when authentication is disabled.
const anonymousID = "anonymous"

// Middleware authenticates admin API requests.
type Middleware struct {
	mode          AuthMode
	jwt           *JWTManager
	defaultTenant string
	onFailure     func(w http.ResponseWriter, r *http.Request, err error)
}

// NewMiddleware builds the middleware for cfg. jwt mode requires a secret.
func NewMiddleware(cfg *config.SecurityConfig) (*Middleware, error) {
	mode, err := ParseAuthMode(cfg.AuthMode)
	if err != nil {
		return nil, err
	}
	m := &Middleware{mode: mode, defaultTenant: cfg.DefaultTenant, onFailure: writeUnauthorized}
	if mode == AuthModeJWT {
		manager, err := NewJWTManager(cfg)
		if err != nil {
			return nil, fmt.Errorf("jwt auth: %w", err)
		}
		m.jwt = manager
	}
	return m, nil
}

// Mode returns the configured mode.
func (m *Middleware) Mode() AuthMode {
	return m.mode
}

// JWT returns the token manager, or nil in none mode.
func (m *Middleware) JWT() *JWTManager {
	return m.jwt
}

// OnFailure replaces the 401 writer, so the API can render its envelope.
func (m *Middleware) OnFailure(fn func(w http.ResponseWriter, r *http.Request, err error)) {
	if fn != nil {
		m.onFailure = fn
	}
}

// Authenticate resolves the subject and stores it, with its tenant, in the
// request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := m.subject(r)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
			m.onFailure(w, r, err)
			return
		}
		ctx := ContextWithSubject(r.Context(), subject)
		ctx = logging.ContextWithTenantID(ctx, subject.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) subject(r *http.Request) (*AuthSubject, error) {
	if m.mode == AuthModeNone {
		return &AuthSubject{
			ID:         anonymousID,
			TenantID:   m.defaultTenant,
			Roles:      []string{RoleAdmin},
			AuthMethod: AuthModeNone,
		}, nil
	}

	token := bearerToken(r)
	if token == "" {
		return nil, ErrNoCredentials
	}
	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return SubjectFromClaims(claims), nil
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter used by websocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func writeUnauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	msg := "Unauthorized: authentication failed"
	if errors.Is(err, ErrNoCredentials) {
		msg = "Unauthorized: authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="fieldsync"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
