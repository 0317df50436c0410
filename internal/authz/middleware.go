// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package authz

import (
	"errors"
	"net/http"

	"github.com/tomtom215/fieldsync/internal/auth"
	"github.com/tomtom215/fieldsync/internal/logging"
)

// ErrForbidden is passed to the denial writer when no role allows the request.
var ErrForbidden = errors.New("insufficient permissions")

// ErrNoSubject is passed when authentication did not run.
var ErrNoSubject = errors.New("no authentication context")

// Middleware authorizes requests by path and method.
type Middleware struct {
	enforcer *Enforcer
	onDenied func(w http.ResponseWriter, r *http.Request, status int, err error)
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer, onDenied: writeDenied}
}

// OnDenied replaces the 403/500 writer.
func (m *Middleware) OnDenied(fn func(w http.ResponseWriter, r *http.Request, status int, err error)) {
	if fn != nil {
		m.onDenied = fn
	}
}

// Authorize checks the subject's roles against the request path and the
// action derived from its method.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := auth.SubjectFromContext(r.Context())
		if subject == nil {
			m.onDenied(w, r, http.StatusForbidden, ErrNoSubject)
			return
		}

		action := methodToAction(r.Method)
		allowed, err := m.enforcer.EnforceWithRoles(subject.Roles, r.URL.Path, action)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("authorization error")
			m.onDenied(w, r, http.StatusInternalServerError, err)
			return
		}
		if !allowed {
			logging.Ctx(r.Context()).Debug().
				Str("subject", subject.ID).
				Strs("roles", subject.Roles).
				Str("path", r.URL.Path).
				Str("action", action).
				Msg("request denied")
			m.onDenied(w, r, http.StatusForbidden, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// methodToAction maps HTTP methods to Casbin actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func writeDenied(w http.ResponseWriter, _ *http.Request, status int, err error) {
	if status == http.StatusForbidden {
		http.Error(w, "Forbidden: "+err.Error(), status)
		return
	}
	http.Error(w, "Internal server error", status)
}
