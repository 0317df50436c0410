// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package main is the entry point for the Fieldsync server.

Fieldsync mirrors a rate-limited, multi-tenant field-service CRM into a local
DuckDB store. Categories edited locally are pushed back to the source, product
images are copied into a local asset store, and every unit of work runs as a
persistent job on a family-scoped worker pool.

# Application Architecture

	RootSupervisor ("fieldsync")
	├── DataSupervisor ("data-layer")
	│   ├── Token cache (OAuth client-credentials tokens)
	│   ├── Provider set cache (per-tenant source providers)
	│   └── Queue monitor (job queue depth gauges)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket hub
	│   └── Notify bridge (bus events to websocket clients)
	├── WorkerSupervisor ("worker-layer")
	│   ├── Job pools (inbound, outbound, notification, image, workflow)
	│   └── Scheduler (cron-driven sync, pushback and purge jobs)
	└── APISupervisor ("api-layer")
	    └── HTTP server (admin API, swagger, metrics)

When the engine cannot be built (bad credentials, unreachable database) the
API layer still starts and /api/v1/health/ready reports not ready.

# Commands

	fieldsync                     # run the server
	fieldsync -version            # print build information
	fieldsync token -subject ops -roles operator,admin
	                              # mint an API token with JWT_SECRET

# Configuration

Configuration is loaded via Koanf v2 (highest priority wins):

	Environment variables > Config file (CONFIG_PATH, config.yaml) > Defaults

Core environment variables:

	# Source API (single tenant shortcut; use a config file for several)
	SOURCE_BASE_URL=https://api.servicetitan.io
	SOURCE_AUTH_URL=https://auth.servicetitan.io
	SOURCE_TENANT=<source tenant id>
	SOURCE_CLIENT_ID=<client id>
	SOURCE_CLIENT_SECRET=<client secret>
	SOURCE_APP_KEY=<app key>
	SOURCE_MODE=production        # production or integration

	# Sync and jobs
	SYNC_PAGE_SIZE=100
	SYNC_DOWNLOAD_IMAGES=true
	JOBS_OUTBOUND_CONCURRENCY=2
	SCHEDULE_INCREMENTAL="0/10 * * * *"

	# Storage and notifications
	DUCKDB_PATH=/data/fieldsync.duckdb
	ASSETS_PATH=/data/assets
	NOTIFY_BACKEND=channel        # channel or nats (-tags nats)

	# Server and security
	HTTP_PORT=8080
	AUTH_MODE=jwt                 # jwt or none
	JWT_SECRET=<32+ chars>
	LOG_LEVEL=info
	LOG_FORMAT=json

# Building

	go build -o fieldsync ./cmd/server
	go build -tags nats -o fieldsync ./cmd/server

Version information is injected with ldflags:

	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)" ./cmd/server
*/
package main
