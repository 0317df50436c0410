// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package assets stores downloaded category images in BadgerDB.

Each image is kept under its (tenant, category) key as two entries: a small
JSON metadata record and the image bytes. The metadata carries the SHA-256
of the source path, so a re-download of an unchanged reference is skipped.

	meta:<tenant>:<category>  -> Asset (JSON)
	blob:<tenant>:<category>  -> image bytes

Open with AssetsConfig.InMemory set for tests and ephemeral deployments.
*/
package assets
