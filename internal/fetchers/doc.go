// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package fetchers mirrors source entity types into the raw cache.

Each entity type is described by a Descriptor: which domain and resource it
is listed from, how it pages, and how its fields map onto the columns of its
raw_<entity> table. The Runner walks a descriptor page by page through a
provider.RecordSource and upserts every record with one statement.

# Sync Types

  - full: every page is walked; the run stamps LastFullSyncAt
  - incremental: only records with modifiedOnOrAfter >= watermark are read;
    with no watermark the runner falls back to a full walk recorded as full
  - reference: a full walk of a small lookup entity (technicians, business
    units, job types); these never sync incrementally

# Cancellation

Between pages the runner asks the tracker whether its sync id still holds a
running slot. A cancelled slot stops further fetches. Rows already upserted
stay in the cache.

# Post-Sync Hooks

Hooks registered with OnComplete run after a successful walk and before the
run is marked completed. The engine uses one to rebuild the category master
layer and queue image downloads.

# Usage

	runner := fetchers.NewRunner(db, tracker, resolve, fetchers.Options{
		PageSize:  cfg.Sync.PageSize,
		PageDelay: cfg.Sync.PageDelay,
	})
	res, err := runner.Run(ctx, "acme", "customers", models.SyncTypeIncremental)
*/
package fetchers
