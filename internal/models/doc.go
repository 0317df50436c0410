// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package models defines the data structures shared across Fieldsync.

Key Components:

  - SourceRecord: one record as returned by the source API, before mapping
  - SyncState / SyncRun: per (tenant, entity type) sync bookkeeping and history
  - Category: effective master node with per-field override flags
  - PendingOverride: a local edit waiting to be pushed back to the source
  - Job / SyncJobPayload: durable background work item

JSON tags use camelCase to match the admin API.
*/
package models
