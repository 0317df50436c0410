// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = testSecret
	cfg.Tenants = []TenantConfig{{ID: "acme", SourceTenant: "100", ClientID: "a", ClientSecret: "b"}}
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad base url", func(c *Config) { c.Source.BaseURL = "ftp://x" }, "scheme must be http or https"},
		{"base url with path", func(c *Config) { c.Source.AuthURL = "https://auth.example.com/connect" }, "remove path"},
		{"zero attempts", func(c *Config) { c.Source.MaxAttempts = 0 }, "SOURCE_MAX_ATTEMPTS"},
		{"duplicate tenant", func(c *Config) { c.Tenants = append(c.Tenants, c.Tenants[0]) }, "duplicate tenant id"},
		{"tenant missing secret", func(c *Config) { c.Tenants[0].ClientSecret = "" }, "ClientSecret is required"},
		{"tenant non-numeric source tenant", func(c *Config) { c.Tenants[0].SourceTenant = "abc" }, "SourceTenant must be numeric"},
		{"tenant bad mode", func(c *Config) { c.Tenants[0].Mode = "staging" }, "mode must be"},
		{"tenant unknown domain", func(c *Config) { c.Tenants[0].DomainModes = map[string]string{"billing": "production"} }, "unknown domain"},
		{"tenant bad webhook", func(c *Config) { c.Tenants[0].WebhookURL = "not a url" }, "webhook_url"},
		{"inbound concurrency", func(c *Config) { c.Jobs.Inbound.Concurrency = 2 }, "watermarks never race"},
		{"pool too small", func(c *Config) { c.Database.MaxOpenConns = 4 }, "DUCKDB_MAX_OPEN_CONNS"},
		{"bad timezone", func(c *Config) { c.Schedules.Timezone = "Mars/Olympus" }, "SCHEDULES_TIMEZONE"},
		{"bad backend", func(c *Config) { c.Notify.Backend = "kafka" }, "NOTIFY_BACKEND"},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "x" }, "JWT_SECRET"},
		{"auth none", func(c *Config) { c.Security.AuthMode = "none"; c.Security.JWTSecret = "" }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"wildcard cors", func(c *Config) { c.Security.CORSOrigins = []string{"*"} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEffectiveTenants(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()
	if got := cfg.EffectiveTenants(); got != nil {
		t.Errorf("EffectiveTenants() = %v, want nil without credentials", got)
	}

	cfg.Source.ClientID = "cid"
	cfg.Source.TenantID = "solo"
	got := cfg.EffectiveTenants()
	if len(got) != 1 || got[0].ID != "solo" || got[0].ClientID != "cid" {
		t.Errorf("EffectiveTenants() = %+v", got)
	}
	if _, ok := cfg.Tenant("other"); ok {
		t.Error("Tenant(other) should not be found")
	}
}
