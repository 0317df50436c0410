// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fieldsync/config.yaml",
	"/etc/fieldsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:            "https://api.servicetitan.io",
			AuthURL:            "https://auth.servicetitan.io",
			IntegrationBaseURL: "https://api-integration.servicetitan.io",
			IntegrationAuthURL: "https://auth-integration.servicetitan.io",
			Mode:               ModeProduction,
			Timeout:            30 * time.Second,
			MaxAttempts:        5,
			RetryBase:          time.Second,
			RetryMaxDelay:      60 * time.Second,
			RateLimitCooldown:  60 * time.Second,
			RequestsPerSecond:  5,
			Burst:              5,
			TokenRefreshSkew:   60 * time.Second,
			BreakerEnabled:     true,
		},
		Sync: SyncConfig{
			PageSize:       100,
			PageDelay:      250 * time.Millisecond,
			StaleAfter:     2 * time.Hour,
			DownloadImages: true,
		},
		Jobs: JobsConfig{
			PollInterval:    time.Second,
			LeaseDuration:   10 * time.Minute,
			BackoffBase:     5 * time.Second,
			BackoffMax:      30 * time.Minute,
			RetentionPeriod: 7 * 24 * time.Hour,
			Inbound:         FamilyConfig{Concurrency: 1, MaxAttempts: 3},
			Outbound:        FamilyConfig{Concurrency: 2, RatePerSecond: 1, Burst: 1, MaxAttempts: 5},
			Notification:    FamilyConfig{Concurrency: 4, RatePerSecond: 10, Burst: 10, MaxAttempts: 5},
			Image:           FamilyConfig{Concurrency: 3, RatePerSecond: 5, Burst: 5, MaxAttempts: 3},
			Workflow:        FamilyConfig{Concurrency: 1, MaxAttempts: 3},
		},
		Schedules: SchedulesConfig{
			Enabled:      true,
			TickInterval: 30 * time.Second,
			Timezone:     "UTC",
			Incremental:  "*/10 * * * *",
			Full:         "0 3 * * *",
			Reference:    "0 */6 * * *",
			Pushback:     "*/15 * * * *",
			Purge:        "30 4 * * *",
		},
		Assets: AssetsConfig{
			Path:     "/data/assets",
			MaxBytes: 10 << 20, // 10MB
		},
		Notify: NotifyConfig{
			Backend:        NotifyBackendChannel,
			Topic:          "fieldsync.events",
			WebhookTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			Host:           "127.0.0.1",
			Port:           4222,
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "FIELDSYNC",
			DurableName:    "fieldsync-bridge",
			MaxDeliver:     5,
			AckWait:        30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:         "/data/fieldsync.duckdb",
			MaxMemory:    "1GB",
			Threads:      0,
			MaxOpenConns: 24,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			JWTIssuer:       "fieldsync",
			TokenTTL:        24 * time.Hour,
			DefaultTenant:   "default",
			CORSOrigins:     []string{},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf with layered sources:
//  1. Built-in defaults
//  2. Config file (optional)
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are the koanf paths whose env values are comma-separated lists.
var sliceConfigPaths = []string{
	"sync.entity_types",
	"security.cors_origins",
}

// processSliceFields converts comma-separated env strings into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Source API
	"source_base_url":             "source.base_url",
	"source_auth_url":             "source.auth_url",
	"source_integration_base_url": "source.integration_base_url",
	"source_integration_auth_url": "source.integration_auth_url",
	"source_tenant_id":            "source.tenant_id",
	"source_tenant":               "source.source_tenant",
	"source_client_id":            "source.client_id",
	"source_client_secret":        "source.client_secret",
	"source_app_key":              "source.app_key",
	"source_mode":                 "source.mode",
	"source_timeout":              "source.timeout",
	"source_max_attempts":         "source.max_attempts",
	"source_retry_base":           "source.retry_base",
	"source_retry_max_delay":      "source.retry_max_delay",
	"source_rate_limit_cooldown":  "source.rate_limit_cooldown",
	"source_requests_per_second":  "source.requests_per_second",
	"source_burst":                "source.burst",
	"source_token_refresh_skew":   "source.token_refresh_skew",
	"source_breaker_enabled":      "source.breaker_enabled",

	// Sync
	"sync_page_size":       "sync.page_size",
	"sync_page_delay":      "sync.page_delay",
	"sync_stale_after":     "sync.stale_after",
	"sync_entity_types":    "sync.entity_types",
	"sync_download_images": "sync.download_images",

	// Jobs
	"jobs_poll_interval":             "jobs.poll_interval",
	"jobs_lease_duration":            "jobs.lease_duration",
	"jobs_backoff_base":              "jobs.backoff_base",
	"jobs_backoff_max":               "jobs.backoff_max",
	"jobs_retention_period":          "jobs.retention_period",
	"jobs_inbound_concurrency":       "jobs.inbound.concurrency",
	"jobs_outbound_concurrency":      "jobs.outbound.concurrency",
	"jobs_outbound_rate":             "jobs.outbound.rate_per_second",
	"jobs_notification_concurrency":  "jobs.notification.concurrency",
	"jobs_notification_rate":         "jobs.notification.rate_per_second",
	"jobs_image_concurrency":         "jobs.image.concurrency",
	"jobs_image_rate":                "jobs.image.rate_per_second",
	"jobs_workflow_concurrency":      "jobs.workflow.concurrency",
	"jobs_inbound_max_attempts":      "jobs.inbound.max_attempts",
	"jobs_outbound_max_attempts":     "jobs.outbound.max_attempts",
	"jobs_notification_max_attempts": "jobs.notification.max_attempts",
	"jobs_image_max_attempts":        "jobs.image.max_attempts",
	"jobs_workflow_max_attempts":     "jobs.workflow.max_attempts",

	// Schedules
	"schedules_enabled":       "schedules.enabled",
	"schedules_tick_interval": "schedules.tick_interval",
	"schedules_timezone":      "schedules.timezone",
	"schedule_incremental":    "schedules.incremental",
	"schedule_full":           "schedules.full",
	"schedule_reference":      "schedules.reference",
	"schedule_pushback":       "schedules.pushback",
	"schedule_purge":          "schedules.purge",

	// Assets
	"assets_path":      "assets.path",
	"assets_in_memory": "assets.in_memory",
	"assets_max_bytes": "assets.max_bytes",

	// Notify / NATS
	"notify_backend":         "notify.backend",
	"notify_topic":           "notify.topic",
	"notify_webhook_timeout": "notify.webhook_timeout",
	"nats_url":               "nats.url",
	"nats_embedded":          "nats.embedded_server",
	"nats_host":              "nats.host",
	"nats_port":              "nats.port",
	"nats_store_dir":         "nats.store_dir",
	"nats_stream_name":       "nats.stream_name",
	"nats_durable_name":      "nats.durable_name",
	"nats_max_deliver":       "nats.max_deliver",
	"nats_ack_wait":          "nats.ack_wait",

	// Database
	"duckdb_path":           "database.path",
	"duckdb_max_memory":     "database.max_memory",
	"duckdb_threads":        "database.threads",
	"duckdb_max_open_conns": "database.max_open_conns",

	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Security
	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"jwt_issuer":          "security.jwt_issuer",
	"jwt_token_ttl":       "security.token_ttl",
	"default_tenant":      "security.default_tenant",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"casbin_model_path":   "security.casbin_model_path",
	"casbin_policy_path":  "security.casbin_policy_path",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf paths.
// Unmapped keys return "" so random environment variables never pollute config.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
