// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package validation wraps go-playground/validator v10 with a singleton
// validator and error messages in the API's VALIDATION_ERROR format.
//
// It validates admin API request bodies and tenant configuration:
//
//	type TriggerRequest struct {
//	    SyncType    string   `validate:"required,oneof=full incremental reference"`
//	    EntityTypes []string `validate:"omitempty,dive,slug"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    // respond 400 with apiErr.Code / apiErr.Message / apiErr.Details
//	}
//
// Custom tags:
//   - slug: lower-case identifier ([a-z0-9][a-z0-9_-]*), used for tenant ids
//     and entity types
//
// The validator is created once and is safe for concurrent use.
package validation
