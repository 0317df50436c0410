// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/fieldsync/internal/config"
)

// DefaultTokenTTL applies when security.token_ttl is unset.
const DefaultTokenTTL = 24 * time.Hour

// DefaultIssuer applies when security.jwt_issuer is unset.
const DefaultIssuer = "fieldsync"

// Claims are the JWT claims of an admin token.
type Claims struct {
	TenantID string   `json:"tenant"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates admin tokens.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager creates a manager from the security config. The secret is
// required.
//
// Example:
//
//	m, err := auth.NewJWTManager(&cfg.Security)
//	if err != nil {
//	    return err
//	}
//	token, _ := m.GenerateToken("ops", "acme", []string{"operator"})
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg == nil || cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required but was empty")
	}
	issuer := cfg.JWTIssuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTManager{
		secret: []byte(cfg.JWTSecret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// GenerateToken signs a token for subject in tenantID with roles.
func (m *JWTManager) GenerateToken(subject, tenantID string, roles []string) (string, error) {
	if subject == "" || tenantID == "" {
		return "", errors.New("subject and tenant are required")
	}
	now := m.now()
	claims := &Claims{
		TenantID: tenantID,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, algorithm, issuer and lifetime, and
// returns the claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, errors.New("token is missing subject or tenant")
	}
	return claims, nil
}
