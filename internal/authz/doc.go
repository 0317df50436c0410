// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package authz enforces the admin API role policy with Casbin.
//
// The model is RBAC with inheritance. Objects are request paths matched with
// keyMatch2 and actions are derived from the HTTP method:
//
//	GET, HEAD, OPTIONS -> read
//	POST, PUT, PATCH   -> write
//	DELETE             -> delete
//
// The embedded default policy grants three roles:
//
//	viewer    read sync state, history, categories, jobs and the event stream
//	operator  viewer plus triggering and cancelling syncs, category edits,
//	          push-back and job retry
//	admin     everything under /api/v1, including cache purge
//
// security.casbin_model_path and security.casbin_policy_path replace the
// embedded files. Decisions are cached per role, path and action.
package authz
