// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Job families. Each family runs in its own worker pool.
const (
	FamilyInbound      = "inbound"
	FamilyOutbound     = "outbound"
	FamilyNotification = "notification"
	FamilyImage        = "image"
	FamilyWorkflow     = "workflow"
)

// Families lists every job family.
var Families = []string{FamilyInbound, FamilyOutbound, FamilyNotification, FamilyImage, FamilyWorkflow}

// Job statuses.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Job types.
const (
	JobTypeSync     = "sync"
	JobTypePushback = "pushback"
	JobTypeNotify   = "notify"
	JobTypeImage    = "image_download"
	JobTypeWorkflow = "workflow"
	JobTypePurge    = "purge"
)

// Priorities. Higher runs first.
const (
	PriorityLow       = 0
	PriorityNormal    = 5
	PriorityScheduled = 10
	PriorityManual    = 100
)

// Job is a durable unit of background work.
type Job struct {
	ID          string          `json:"id"`
	Family      string          `json:"family"`
	Type        string          `json:"type"`
	TenantID    string          `json:"tenantId"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Status      string          `json:"status"`
	RunAt       time.Time       `json:"runAt"`
	LeaseUntil  *time.Time      `json:"leaseUntil,omitempty"`
	LeaseHolder string          `json:"leaseHolder,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
	DedupeKey   string          `json:"dedupeKey,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

// SyncJobPayload is the payload of an inbound sync job.
type SyncJobPayload struct {
	EntityTypes []string   `json:"entityTypes,omitempty"`
	SyncType    string     `json:"syncType"`
	Since       *time.Time `json:"since,omitempty"`
	Manual      bool       `json:"manual,omitempty"`
}

// PushbackJobPayload is the payload of an outbound push-back job.
type PushbackJobPayload struct {
	EntityType string `json:"entityType"`
}

// NotifyJobPayload is the payload of a notification dispatch job.
type NotifyJobPayload struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ImageJobPayload is the payload of an image download job.
type ImageJobPayload struct {
	CategoryID string `json:"categoryId"`
	Path       string `json:"path"`
}

// WorkflowJobPayload is the payload of a workflow job.
type WorkflowJobPayload struct {
	Name string `json:"name"`
}

// JobStats counts jobs per family and status.
type JobStats map[string]map[string]int64
