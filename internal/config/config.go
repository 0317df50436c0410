// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package config

import "time"

// Provider modes. Both talk to the source HTTP API but against different hosts.
const (
	ModeProduction  = "production"
	ModeIntegration = "integration"
)

// Notification bus backends.
const (
	NotifyBackendChannel = "gochannel"
	NotifyBackendNATS    = "nats"
)

// Config is the root configuration for the service.
type Config struct {
	Source    SourceConfig    `koanf:"source"`
	Tenants   []TenantConfig  `koanf:"tenants"`
	Sync      SyncConfig      `koanf:"sync"`
	Jobs      JobsConfig      `koanf:"jobs"`
	Schedules SchedulesConfig `koanf:"schedules"`
	Assets    AssetsConfig    `koanf:"assets"`
	Notify    NotifyConfig    `koanf:"notify"`
	NATS      NATSConfig      `koanf:"nats"`
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// SourceConfig holds the source API endpoints and client behaviour shared by
// every tenant. The credential fields are a single-tenant shortcut.
type SourceConfig struct {
	BaseURL            string `koanf:"base_url"`
	AuthURL            string `koanf:"auth_url"`
	IntegrationBaseURL string `koanf:"integration_base_url"`
	IntegrationAuthURL string `koanf:"integration_auth_url"`

	TenantID     string `koanf:"tenant_id"`
	SourceTenant string `koanf:"source_tenant"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	AppKey       string `koanf:"app_key"`
	Mode         string `koanf:"mode"`

	Timeout           time.Duration `koanf:"timeout"`
	MaxAttempts       int           `koanf:"max_attempts"`
	RetryBase         time.Duration `koanf:"retry_base"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`
	RateLimitCooldown time.Duration `koanf:"rate_limit_cooldown"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	TokenRefreshSkew  time.Duration `koanf:"token_refresh_skew"`
	BreakerEnabled    bool          `koanf:"breaker_enabled"`
}

// TenantConfig describes one tenant and its source credentials.
type TenantConfig struct {
	ID           string `koanf:"id"`
	Name         string `koanf:"name"`
	SourceTenant string `koanf:"source_tenant"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	AppKey       string `koanf:"app_key"`

	// Mode is the default provider mode for every domain.
	Mode string `koanf:"mode"`

	// DomainModes overrides Mode per domain (crm, jpm, pricebook, settings).
	DomainModes map[string]string `koanf:"domain_modes"`

	// WebhookURL receives notification jobs for this tenant (optional).
	WebhookURL string `koanf:"webhook_url"`
}

// ModeFor returns the provider mode for a domain.
func (t TenantConfig) ModeFor(domain string) string {
	if m, ok := t.DomainModes[domain]; ok && m != "" {
		return m
	}
	if t.Mode != "" {
		return t.Mode
	}
	return ModeProduction
}

// SyncConfig holds inbound synchronization settings.
type SyncConfig struct {
	PageSize    int           `koanf:"page_size"`
	PageDelay   time.Duration `koanf:"page_delay"`
	StaleAfter  time.Duration `koanf:"stale_after"`
	EntityTypes []string      `koanf:"entity_types"`
	// DownloadImages enqueues image jobs after a categories sync.
	DownloadImages bool `koanf:"download_images"`
}

// FamilyConfig controls one isolated worker pool.
type FamilyConfig struct {
	Concurrency   int     `koanf:"concurrency"`
	RatePerSecond float64 `koanf:"rate_per_second"` // 0 = unlimited
	Burst         int     `koanf:"burst"`
	MaxAttempts   int     `koanf:"max_attempts"`
}

// JobsConfig holds job queue and worker settings.
type JobsConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval"`
	LeaseDuration   time.Duration `koanf:"lease_duration"`
	BackoffBase     time.Duration `koanf:"backoff_base"`
	BackoffMax      time.Duration `koanf:"backoff_max"`
	RetentionPeriod time.Duration `koanf:"retention_period"`

	Inbound      FamilyConfig `koanf:"inbound"`
	Outbound     FamilyConfig `koanf:"outbound"`
	Notification FamilyConfig `koanf:"notification"`
	Image        FamilyConfig `koanf:"image"`
	Workflow     FamilyConfig `koanf:"workflow"`
}

// SchedulesConfig holds the recurring trigger patterns (5-field cron).
// An empty pattern disables the schedule.
type SchedulesConfig struct {
	Enabled      bool          `koanf:"enabled"`
	TickInterval time.Duration `koanf:"tick_interval"`
	Timezone     string        `koanf:"timezone"`
	Incremental  string        `koanf:"incremental"`
	Full         string        `koanf:"full"`
	Reference    string        `koanf:"reference"`
	Pushback     string        `koanf:"pushback"`
	Purge        string        `koanf:"purge"`
}

// AssetsConfig holds the image store settings.
type AssetsConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
	MaxBytes int64  `koanf:"max_bytes"`
}

// NotifyConfig holds real-time notification settings.
type NotifyConfig struct {
	Backend        string        `koanf:"backend"`
	Topic          string        `koanf:"topic"`
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`
}

// NATSConfig holds NATS JetStream settings, used when notify.backend is nats.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	StoreDir       string        `koanf:"store_dir"`
	StreamName     string        `koanf:"stream_name"`
	DurableName    string        `koanf:"durable_name"`
	MaxDeliver     int           `koanf:"max_deliver"`
	AckWait        time.Duration `koanf:"ack_wait"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path         string `koanf:"path"`
	MaxMemory    string `koanf:"max_memory"`
	Threads      int    `koanf:"threads"` // 0 = runtime.NumCPU()
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds admin API authentication and authorization settings.
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"` // none or jwt
	JWTSecret         string        `koanf:"jwt_secret"`
	JWTIssuer         string        `koanf:"jwt_issuer"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	DefaultTenant     string        `koanf:"default_tenant"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CasbinModelPath   string        `koanf:"casbin_model_path"`
	CasbinPolicyPath  string        `koanf:"casbin_policy_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// EffectiveTenants returns the configured tenants. When no tenant list is
// configured but SOURCE_CLIENT_ID is set, a single tenant is synthesised from
// the source section.
func (c *Config) EffectiveTenants() []TenantConfig {
	if len(c.Tenants) > 0 {
		return c.Tenants
	}
	if c.Source.ClientID == "" {
		return nil
	}
	id := c.Source.TenantID
	if id == "" {
		id = "default"
	}
	return []TenantConfig{{
		ID:           id,
		SourceTenant: c.Source.SourceTenant,
		ClientID:     c.Source.ClientID,
		ClientSecret: c.Source.ClientSecret,
		AppKey:       c.Source.AppKey,
		Mode:         c.Source.Mode,
	}}
}

// Tenant returns the tenant with the given id.
func (c *Config) Tenant(id string) (TenantConfig, bool) {
	for _, t := range c.EffectiveTenants() {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}
