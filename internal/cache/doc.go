// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package cache provides a generic, thread-safe in-memory cache with TTL support.

The cache is an explicit value owned by whoever constructs it (the engine owns
the OAuth token cache and passes it to every source client). There is no
package-level state.

# Usage

	tokens := cache.NewTTL[string, string](time.Hour)
	tok, err := tokens.GetOrLoad(ctx, key, func(ctx context.Context) (string, time.Duration, error) {
	    return fetchToken(ctx)
	})

GetOrLoad serializes concurrent loads for the same key: while one caller is
loading, later callers for that key wait for its result instead of issuing a
second request.

# Expiration

Expired entries are dropped lazily on Get and in bulk by Serve, which runs a
periodic cleanup until its context is cancelled (it satisfies suture.Service).
*/
package cache
