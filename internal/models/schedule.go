// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package models

import "time"

// Schedule is a registered cron schedule. SyncType is set for sync and
// pushback schedules and empty for job types that need no sync type.
type Schedule struct {
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	JobType   string     `json:"jobType"`
	SyncType  string     `json:"syncType,omitempty"`
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
