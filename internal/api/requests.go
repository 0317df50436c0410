// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/pushback"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// History limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Job list limits.
const (
	defaultJobLimit = 100
	maxJobLimit     = 1000
)

// TriggerRequest is the body of POST /sync/trigger.
type TriggerRequest struct {
	SyncType string         `json:"syncType" validate:"required,oneof=full incremental reference pushback"`
	Options  TriggerOptions `json:"options"`
}

// TriggerOptions narrows a trigger.
type TriggerOptions struct {
	EntityTypes []string `json:"entityTypes" validate:"omitempty,max=32,dive,required"`
}

// TriggerResponse is the body of a 202 trigger.
type TriggerResponse struct {
	JobID string `json:"jobId"`
}

// CancelRequest is the body of POST /sync/cancel.
type CancelRequest struct {
	EntityType string `json:"entityType" validate:"required"`
}

// CancelResponse reports whether a running sync was flipped to cancelled.
type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	SyncID    string `json:"syncId,omitempty"`
}

// StatusResponse is the body of GET /sync/status.
type StatusResponse struct {
	Health   string                      `json:"health"`
	States   map[string]models.SyncState `json:"states"`
	Breakers map[string]string           `json:"breakers,omitempty"`
}

// OverrideRequest is the body of PATCH /categories/{id}/override.
type OverrideRequest struct {
	Field string          `json:"field" validate:"required"`
	Value json.RawMessage `json:"value" validate:"required"`
}

// MoveRequest is the body of POST /categories/{id}/move.
type MoveRequest struct {
	NewParentID string `json:"newParentId"`
	Position    *int   `json:"position" validate:"required,min=0"`
}

// PushResponse is the body of POST /categories/push.
type PushResponse struct {
	Updated    int                  `json:"updated"`
	Failed     int                  `json:"failed"`
	Errors     []pushback.ItemError `json:"errors"`
	Remaining  int64                `json:"remaining"`
	Stopped    bool                 `json:"stopped"`
	StopReason string               `json:"stopReason,omitempty"`
}

// PurgeResponse is the body of DELETE /cache/{entityType}.
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// decodeBody decodes a JSON body into v and validates its tags.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return source.NewValidationError("body", "failed to read body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return source.NewValidationError("body", "body exceeds %d bytes", maxBodyBytes)
	}
	if len(body) == 0 {
		return source.NewValidationError("body", "request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return source.NewValidationError("body", "invalid JSON: %v", err)
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

// intQuery parses a bounded integer query parameter.
func intQuery(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, source.NewValidationError(key, "must be an integer in [%d, %d]", lo, hi)
	}
	return n, nil
}

// boolQuery parses a boolean query parameter.
func boolQuery(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, source.NewValidationError(key, "must be a boolean, got %q", raw)
	}
	return b, nil
}
