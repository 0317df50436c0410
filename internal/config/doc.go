// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package config loads and validates Fieldsync configuration.
//
// Configuration is layered with Koanf v2:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables (highest priority)
//
// Environment variables use flat legacy-style names that are mapped onto the
// nested koanf paths by envTransformFunc, for example:
//
//	SOURCE_CLIENT_ID     -> source.client_id
//	SYNC_PAGE_DELAY      -> sync.page_delay
//	JOBS_INBOUND_CONCURRENCY -> jobs.inbound.concurrency
//	DUCKDB_PATH          -> database.path
//	HTTP_PORT            -> server.port
//
// Multi-tenant deployments list tenants in the YAML file:
//
//	tenants:
//	  - id: acme
//	    source_tenant: "1234567"
//	    client_id: cid.abc
//	    client_secret: cs.xyz
//	    app_key: ak.123
//	    mode: production
//	    domain_modes:
//	      pricebook: integration
//
// Single-tenant deployments can use the SOURCE_* variables instead; see
// Config.EffectiveTenants.
package config
