// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package pushback writes pending category overrides back to the source.

A run holds the sync-state slot of the entity type, so it never overlaps an
inbound sync of the same type. Pending rows are grouped by entity and each
entity is sent as one PATCH.

# Outcomes

  - Accepted: the pushed values are folded into the source_* columns and the
    pending rows are deleted, but only rows whose version still matches what
    was read. An edit made while the PATCH was in flight stays pending.
  - Conflict, permanent or validation rejection: the entity is reported in
    Result.Errors, its rows keep last_error and a bumped attempt count, and
    the batch continues.
  - Rate limit, source outage or cancellation: the run stops issuing writes.
    Deletes already confirmed are kept. Result.Err carries the cause so a
    job can be rescheduled.

Local-only entities (no source id) cannot be pushed and are reported as
item errors.
*/
package pushback
