// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package middleware provides the infrastructure middleware of the admin API.

  - RequestID: assigns or propagates X-Request-ID and seeds the logging
    context with request and correlation ids.
  - PrometheusMetrics: records request count, latency and in-flight gauge,
    labelled by chi route pattern.

Both are chi-style func(http.Handler) http.Handler and sit in front of the
auth and authz middleware:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
