// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package categories serves the pricebook category tree with local edits layered
on top of the source values.

The master layer (the categories table) holds only source_* columns, which
inbound syncs refresh from raw_categories. Local edits are pending overrides
keyed by (entity, field). Effective values are composed at read time, so an
edit is visible immediately and survives any number of inbound refreshes
until the push-back reconciler confirms it.

# Override Lifecycle

	none --ApplyOverride/Move--> pending --push accepted--> (row deleted)
	                             pending --new edit-------> pending (value replaced)

A rejected edit never creates a row.

# Moves

Move reparents a node and renumbers its new siblings. A parent inside the
moving node's own subtree is rejected with a source.ValidationError. The
parentId override and every changed sortOrder are written in one
transaction.
*/
package categories
