// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Overridable category fields.
const (
	FieldName      = "name"
	FieldImageRef  = "imageRef"
	FieldSortOrder = "sortOrder"
	FieldVisible   = "visible"
	FieldParentID  = "parentId"
)

// OverridableFields lists the fields a local edit may change.
var OverridableFields = []string{FieldName, FieldImageRef, FieldSortOrder, FieldVisible, FieldParentID}

// IsOverridable reports whether field accepts a local override.
func IsOverridable(field string) bool {
	for _, f := range OverridableFields {
		if f == field {
			return true
		}
	}
	return false
}

// Category is a master node with effective (source + override) values.
type Category struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	SourceID   *string         `json:"sourceId,omitempty"`
	ParentID   *string         `json:"parentId,omitempty"`
	Name       string          `json:"name"`
	SortOrder  int64           `json:"sortOrder"`
	ImageRef   string          `json:"imageRef,omitempty"`
	Visible    bool            `json:"visible"`
	Children   []*Category     `json:"children,omitempty"`
	Overridden map[string]bool `json:"overridden,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// PendingOverride is a local edit waiting for push-back. Key: (EntityID, Field).
type PendingOverride struct {
	EntityID   string          `json:"entityId"`
	Field      string          `json:"field"`
	EntityType string          `json:"entityType"`
	TenantID   string          `json:"tenantId"`
	Value      json.RawMessage `json:"value"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	PushedAt   *time.Time      `json:"pushedAt,omitempty"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
}
