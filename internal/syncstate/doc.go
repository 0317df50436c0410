// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package syncstate tracks the sync slot of every (tenant, entity type) pair.
//
// A slot moves idle → running → completed | failed | cancelled. Start is a
// single conditional upsert in the database, so two processes racing for the
// same slot cannot both win. A running slot whose heartbeat (UpdateProgress)
// is older than the stale window is considered abandoned and is taken over.
//
// Completing a full or reference sync stamps LastFullSyncAt; completing an
// incremental sync stamps LastIncrementalSyncAt. Both are set to the run's
// start time. GetWatermark prefers the incremental stamp.
package syncstate
