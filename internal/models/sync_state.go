// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package models

import "time"

// Sync statuses.
const (
	SyncStatusIdle      = "idle"
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
	SyncStatusCancelled = "cancelled"
)

// Sync types.
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
	SyncTypeReference   = "reference"
	SyncTypePushback    = "pushback"
)

// SyncState is the bookkeeping row for one (tenant, entity type) slot.
// At most one row per key is ever running.
type SyncState struct {
	TenantID              string     `json:"tenantId"`
	EntityType            string     `json:"entityType"`
	Status                string     `json:"status"`
	SyncID                string     `json:"syncId,omitempty"`
	SyncType              string     `json:"syncType,omitempty"`
	LastFullSyncAt        *time.Time `json:"lastFullSyncAt,omitempty"`
	LastIncrementalSyncAt *time.Time `json:"lastIncrementalSyncAt,omitempty"`
	LastSyncAt            *time.Time `json:"lastSyncAt,omitempty"`
	StartedAt             *time.Time `json:"startedAt,omitempty"`
	RecordsSynced         int64      `json:"recordsSynced"`
	ErrorCount            int64      `json:"errorCount"`
	ErrorMessage          string     `json:"errorMessage,omitempty"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Watermark returns the incremental watermark, falling back to the last full sync.
func (s *SyncState) Watermark() *time.Time {
	if s.LastIncrementalSyncAt != nil {
		return s.LastIncrementalSyncAt
	}
	return s.LastFullSyncAt
}

// SyncRun is one history row, created on every start.
type SyncRun struct {
	SyncID        string     `json:"syncId"`
	TenantID      string     `json:"tenantId"`
	EntityType    string     `json:"entityType"`
	SyncType      string     `json:"syncType"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	RecordsSynced int64      `json:"recordsSynced"`
	ErrorCount    int64      `json:"errorCount"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
}
