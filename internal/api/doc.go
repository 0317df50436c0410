// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package api serves the admin HTTP API of the sync engine.

Every response uses the APIResponse envelope. Routes live under /api/v1:

	POST   /sync/trigger                  enqueue a manual sync (202)
	POST   /sync/cancel                   cancel a running sync
	GET    /sync/status                   per-entity state and health
	GET    /sync/history                  recent runs
	GET    /categories/tree               effective category forest
	GET    /categories/pending            overrides waiting for push-back
	POST   /categories/push               push overrides inline
	PATCH  /categories/{id}/override      override one field
	POST   /categories/{id}/move          reparent and reposition
	POST   /categories/{id}/move-to-top
	POST   /categories/{id}/move-to-bottom
	GET    /jobs                          list jobs
	GET    /jobs/stats                    counts per family and status
	POST   /jobs/{id}/retry               requeue a failed job
	DELETE /cache/{entityType}            purge cached records
	GET    /ws                            event stream

/api/v1/health/live and /api/v1/health/ready are unauthenticated. All other
routes pass rate limiting, authentication (internal/auth) and role checks
(internal/authz). The caller's tenant always comes from the token.

Handlers depend on small interfaces collected in Deps, so the engine can be
wired in after the HTTP server starts; until then they answer 503.
*/
package api
