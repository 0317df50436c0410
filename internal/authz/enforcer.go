// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/fieldsync/internal/cache"
	"github.com/tomtom215/fieldsync/internal/config"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// DefaultCacheTTL is how long a decision is cached.
const DefaultCacheTTL = 5 * time.Minute

// Config selects the model and policy. Empty paths use the embedded files.
type Config struct {
	ModelPath  string
	PolicyPath string
	CacheTTL   time.Duration
}

// ConfigFromSecurity maps the security section.
func ConfigFromSecurity(cfg *config.SecurityConfig) Config {
	return Config{ModelPath: cfg.CasbinModelPath, PolicyPath: cfg.CasbinPolicyPath}
}

// Enforcer wraps the Casbin enforcer with a decision cache.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	cache    *cache.TTL[string, bool]
}

// NewEnforcer creates an enforcer. A configured path that does not exist is
// an error rather than a silent fallback to the embedded policy.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	var (
		m   model.Model
		err error
	)
	if cfg.ModelPath != "" {
		if !fileExists(cfg.ModelPath) {
			return nil, fmt.Errorf("casbin model %s not found", cfg.ModelPath)
		}
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if !fileExists(cfg.PolicyPath) {
			return nil, fmt.Errorf("casbin policy %s not found", cfg.PolicyPath)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Enforcer{enforcer: enforcer, cache: cache.NewTTL[string, bool](ttl)}, nil
}

// loadEmbeddedPolicy parses the policy CSV into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch rule := parts[1:]; parts[0] {
		case "p":
			if len(rule) < 3 {
				return fmt.Errorf("malformed policy line %q", line)
			}
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", rule, err)
			}
		case "g":
			if len(rule) < 2 {
				return fmt.Errorf("malformed grouping line %q", line)
			}
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
			}
		}
	}
	return nil
}

// Enforce checks if role may perform action on object.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	start := time.Now()
	key := role + "|" + object + "|" + action
	if allowed, ok := e.cache.Get(key); ok {
		recordDecision(role, action, allowed, true, time.Since(start))
		return allowed, nil
	}

	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	e.cache.Set(key, allowed)
	recordDecision(role, action, allowed, false, time.Since(start))
	return allowed, nil
}

// EnforceWithRoles allows the request if any role allows it. No roles means
// no access.
func (e *Enforcer) EnforceWithRoles(roles []string, object, action string) (bool, error) {
	for _, role := range roles {
		allowed, err := e.Enforce(role, object, action)
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

// LoadPolicy reloads a file policy and drops cached decisions.
func (e *Enforcer) LoadPolicy() error {
	if err := e.enforcer.LoadPolicy(); err != nil {
		return err
	}
	e.cache.Clear()
	return nil
}

// Serve sweeps expired decisions until ctx is done.
func (e *Enforcer) Serve(ctx context.Context) error {
	return e.cache.Serve(ctx)
}

func (e *Enforcer) String() string {
	return "authz-cache"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
