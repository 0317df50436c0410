// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/fieldsync/internal/validation"
)

// Domains that accept a per-tenant provider mode.
var knownDomains = map[string]bool{
	"crm":       true,
	"jpm":       true,
	"pricebook": true,
	"settings":  true,
}

// Validate checks every configuration section.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateSource,
		c.validateTenants,
		c.validateSync,
		c.validateJobs,
		c.validateSchedules,
		c.validateNotify,
		c.validateDatabase,
		c.validateServer,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSource() error {
	urls := map[string]string{
		"SOURCE_BASE_URL":             c.Source.BaseURL,
		"SOURCE_AUTH_URL":             c.Source.AuthURL,
		"SOURCE_INTEGRATION_BASE_URL": c.Source.IntegrationBaseURL,
		"SOURCE_INTEGRATION_AUTH_URL": c.Source.IntegrationAuthURL,
	}
	for name, u := range urls {
		if u == "" {
			return fmt.Errorf("%s is required", name)
		}
		if err := validateHTTPURL(u, name); err != nil {
			return err
		}
	}
	if c.Source.MaxAttempts < 1 {
		return fmt.Errorf("SOURCE_MAX_ATTEMPTS must be at least 1, got %d", c.Source.MaxAttempts)
	}
	if c.Source.Timeout <= 0 {
		return errors.New("SOURCE_TIMEOUT must be positive")
	}
	if c.Source.RetryBase <= 0 || c.Source.RetryMaxDelay < c.Source.RetryBase {
		return errors.New("SOURCE_RETRY_BASE must be positive and not exceed SOURCE_RETRY_MAX_DELAY")
	}
	if c.Source.RequestsPerSecond < 0 {
		return errors.New("SOURCE_REQUESTS_PER_SECOND must not be negative")
	}
	if c.Source.Mode != "" && !validMode(c.Source.Mode) {
		return fmt.Errorf("SOURCE_MODE must be 'production' or 'integration', got %q", c.Source.Mode)
	}
	return nil
}

func (c *Config) validateTenants() error {
	seen := make(map[string]bool)
	for i, t := range c.EffectiveTenants() {
		if err := validation.ValidateStruct(tenantRules{
			ID:           t.ID,
			SourceTenant: t.SourceTenant,
			ClientID:     t.ClientID,
			ClientSecret: t.ClientSecret,
		}); err != nil {
			return fmt.Errorf("tenants[%d]: %w", i, err)
		}
		if seen[t.ID] {
			return fmt.Errorf("tenants[%d]: duplicate tenant id %q", i, t.ID)
		}
		seen[t.ID] = true

		if t.Mode != "" && !validMode(t.Mode) {
			return fmt.Errorf("tenants[%d]: mode must be 'production' or 'integration', got %q", i, t.Mode)
		}
		for domain, mode := range t.DomainModes {
			if !knownDomains[domain] {
				return fmt.Errorf("tenants[%d]: unknown domain %q in domain_modes", i, domain)
			}
			if !validMode(mode) {
				return fmt.Errorf("tenants[%d]: domain_modes.%s must be 'production' or 'integration', got %q", i, domain, mode)
			}
		}
		if t.WebhookURL != "" {
			if err := validateWebhookURL(t.WebhookURL, fmt.Sprintf("tenants[%d].webhook_url", i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// tenantRules carries the struct tags checked for every tenant.
type tenantRules struct {
	ID           string `validate:"required,max=64,excludesall= /"`
	SourceTenant string `validate:"required,numeric"`
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
}

func (c *Config) validateSync() error {
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 5000 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 5000, got %d", c.Sync.PageSize)
	}
	if c.Sync.PageDelay < 0 {
		return errors.New("SYNC_PAGE_DELAY must not be negative")
	}
	if c.Sync.StaleAfter < time.Minute {
		return fmt.Errorf("SYNC_STALE_AFTER must be at least 1m, got %s", c.Sync.StaleAfter)
	}
	return nil
}

func (c *Config) validateJobs() error {
	families := map[string]FamilyConfig{
		"inbound":      c.Jobs.Inbound,
		"outbound":     c.Jobs.Outbound,
		"notification": c.Jobs.Notification,
		"image":        c.Jobs.Image,
		"workflow":     c.Jobs.Workflow,
	}
	total := 0
	for name, f := range families {
		if f.Concurrency < 1 {
			return fmt.Errorf("jobs.%s.concurrency must be at least 1, got %d", name, f.Concurrency)
		}
		if f.RatePerSecond < 0 {
			return fmt.Errorf("jobs.%s.rate_per_second must not be negative", name)
		}
		if f.MaxAttempts < 1 {
			return fmt.Errorf("jobs.%s.max_attempts must be at least 1, got %d", name, f.MaxAttempts)
		}
		total += f.Concurrency
	}
	if c.Jobs.Inbound.Concurrency != 1 {
		return errors.New("jobs.inbound.concurrency must be 1 so watermarks never race")
	}
	if c.Jobs.LeaseDuration < time.Minute {
		return fmt.Errorf("JOBS_LEASE_DURATION must be at least 1m, got %s", c.Jobs.LeaseDuration)
	}
	if c.Jobs.PollInterval <= 0 {
		return errors.New("JOBS_POLL_INTERVAL must be positive")
	}
	if c.Jobs.BackoffBase <= 0 || c.Jobs.BackoffMax < c.Jobs.BackoffBase {
		return errors.New("JOBS_BACKOFF_BASE must be positive and not exceed JOBS_BACKOFF_MAX")
	}
	if c.Database.MaxOpenConns < total+2 {
		return fmt.Errorf("DUCKDB_MAX_OPEN_CONNS must be at least %d (worker concurrency plus API headroom), got %d",
			total+2, c.Database.MaxOpenConns)
	}
	return nil
}

func (c *Config) validateSchedules() error {
	if !c.Schedules.Enabled {
		return nil
	}
	if c.Schedules.TickInterval < time.Second {
		return errors.New("SCHEDULES_TICK_INTERVAL must be at least 1s")
	}
	if _, err := time.LoadLocation(c.Schedules.Timezone); err != nil {
		return fmt.Errorf("SCHEDULES_TIMEZONE is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateNotify() error {
	switch c.Notify.Backend {
	case NotifyBackendChannel:
	case NotifyBackendNATS:
		if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
			return errors.New("NATS_URL is required when notify backend is nats and the embedded server is disabled")
		}
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be 'gochannel' or 'nats', got %q", c.Notify.Backend)
	}
	if c.Notify.Topic == "" {
		return errors.New("NOTIFY_TOPIC is required")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return errors.New("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return errors.New("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "none":
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters when AUTH_MODE is jwt")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be 'none' or 'jwt', got %q", c.Security.AuthMode)
	}
	if !c.Security.RateLimitDisabled && (c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0) {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive unless rate limiting is disabled")
	}
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			continue
		}
		if err := validateHTTPURL(origin, "CORS_ORIGINS"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "off":
	default:
		return fmt.Errorf("LOG_LEVEL is invalid: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}

func validMode(m string) bool {
	return m == ModeProduction || m == ModeIntegration
}
