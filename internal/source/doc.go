// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package source is the rate-limited HTTP client for the field-service SaaS API.

A Client carries one tenant's credentials against one host pair (production or
integration). Every call goes through the same pipeline:

 1. x/time/rate limiter (requests per second + burst)
 2. OAuth2 client-credentials bearer token from a shared cache.TTL
 3. gobreaker circuit breaker (open circuit fails fast as TransientSourceError)
 4. per-attempt timeout (http.Client.Timeout and context.WithTimeout)
 5. retry on 429, 5xx, timeouts and transport errors, honoring Retry-After,
    otherwise RetryBase * 2^attempt capped at RetryMaxDelay

# Error Taxonomy

Errors returned by the client are one of the concrete types below and are
matched with errors.As:

	TransientSourceError  5xx, timeouts, transport errors, open circuit (retryable)
	RateLimitError        429 after MaxAttempts (retryable after RetryAfter)
	PermanentSourceError  any other 4xx, never retried
	ConflictError         409/412, or 400/422 with a conflict/stale/version code
	ValidationError       rejected locally before any request is made

IsRetryable and Kind classify an error for job scheduling and API mapping.

# Pagination

FetchAllPages walks page-numbered lists (page, pageSize, hasMore) and export
feeds (from, continueFrom, hasMore), sleeping PageDelay between pages.
*/
package source
