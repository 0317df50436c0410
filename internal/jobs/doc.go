// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package jobs runs durable background work from the DuckDB jobs table.

# Queue

Queue adds, leases and settles jobs. A claim takes the highest priority,
then oldest, due job of one family, or a running job whose lease expired.
A failed job is rescheduled with exponential backoff, or with the source's
Retry-After when that is longer, until it runs out of attempts. Permanent
and validation errors fail it at once.

# Pools

Each family (inbound, outbound, notification, image, workflow) has its own
Pool with its own concurrency and rate.Limiter, so a stalled family never
starves another. Workers extend their lease while a handler runs and
recover handler panics; only context cancellation stops a pool.

# Handlers

RegisterHandlers installs the built-ins:

  - sync: inbound sync of the selected entity types; a held slot is skipped
  - pushback: outbound push-back; a rate-limit stop reschedules the job
  - notify: event publish plus the optional tenant webhook
  - image_download: image fetch, skipped when the stored path is unchanged
  - workflow: enqueues named child steps with derived dedupe keys
  - purge: removes old finished jobs and compacts the asset store
*/
package jobs
