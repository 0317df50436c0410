// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthMode represents the authentication strategy.
type AuthMode string

const (
	// AuthModeNone disables authentication
	AuthModeNone AuthMode = "none"

	// AuthModeJWT uses JWT Bearer tokens
	AuthModeJWT AuthMode = "jwt"
)

// Roles known to the default policy.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "none", "":
		return AuthModeNone, nil
	case "jwt":
		return AuthModeJWT, nil
	default:
		return "", fmt.Errorf("invalid auth mode: %s", s)
	}
}

// String returns the string representation of AuthMode.
func (m AuthMode) String() string {
	return string(m)
}

var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates the credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthSubject is the authenticated caller.
type AuthSubject struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	Roles      []string  `json:"roles,omitempty"`
	AuthMethod AuthMode  `json:"authMethod"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// HasRole checks if the subject has a specific role.
func (s *AuthSubject) HasRole(role string) bool {
	if s == nil || role == "" {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SubjectFromClaims maps validated token claims to a subject.
func SubjectFromClaims(claims *Claims) *AuthSubject {
	if claims == nil {
		return nil
	}
	subject := &AuthSubject{
		ID:         claims.Subject,
		TenantID:   claims.TenantID,
		Roles:      append([]string(nil), claims.Roles...),
		AuthMethod: AuthModeJWT,
	}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Time
	}
	return subject
}

type contextKey string

const subjectContextKey contextKey = "auth_subject"

// ContextWithSubject stores subject in ctx.
func ContextWithSubject(ctx context.Context, subject *AuthSubject) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// SubjectFromContext returns the subject stored by the middleware, or nil.
func SubjectFromContext(ctx context.Context) *AuthSubject {
	subject, ok := ctx.Value(subjectContextKey).(*AuthSubject)
	if !ok {
		return nil
	}
	return subject
}
