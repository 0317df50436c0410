// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/pushback"
	"github.com/tomtom215/fieldsync/internal/scheduler"
	"github.com/tomtom215/fieldsync/internal/websocket"
)

// Scheduler enqueues manual runs and reports liveness.
type Scheduler interface {
	TriggerManual(ctx context.Context, tenantID, syncType string, opts scheduler.Options) (string, error)
	Running() bool
}

// SyncStates reads and cancels sync slots.
type SyncStates interface {
	Cancel(ctx context.Context, tenantID, entityType string) (string, error)
	States(ctx context.Context, tenantID string) ([]models.SyncState, error)
	History(ctx context.Context, tenantID, entityType string, limit int) ([]models.SyncRun, error)
}

// Catalogue resolves the entity types a sync type covers.
type Catalogue interface {
	Select(syncType string, requested []string) ([]string, error)
}

// Categories is the master/override layer.
type Categories interface {
	ListTree(ctx context.Context, tenantID string, filter categories.Filter) ([]*models.Category, error)
	Pending(ctx context.Context, tenantID string) ([]models.PendingOverride, error)
	ApplyOverride(ctx context.Context, tenantID, entityID, field string, value json.RawMessage) (*models.Category, error)
	Move(ctx context.Context, tenantID, entityID, newParentID string, position int) (*models.Category, error)
	MoveToTop(ctx context.Context, tenantID, entityID string) (*models.Category, error)
	MoveToBottom(ctx context.Context, tenantID, entityID string) (*models.Category, error)
}

// Pusher runs a push-back inline.
type Pusher interface {
	PushPending(ctx context.Context, tenantID, entityType string) (pushback.Result, error)
}

// Jobs is the operator view of the queue.
type Jobs interface {
	List(ctx context.Context, filter database.JobFilter) ([]models.Job, error)
	Stats(ctx context.Context) (models.JobStats, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	Retry(ctx context.Context, id string) (*models.Job, error)
}

// CachePurger deletes cached source records.
type CachePurger interface {
	Purge(ctx context.Context, tenantID, entityType string) (int64, error)
}

// Breakers reports the source circuit state per domain of a tenant.
type Breakers interface {
	BreakerStates(tenantID string) (map[string]string, error)
}

// Pinger checks the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the engine components behind the API. A nil Deps, or one with
// nil required fields, answers 503 and reports health down.
type Deps struct {
	Scheduler  Scheduler
	States     SyncStates
	Catalogue  Catalogue
	Categories Categories
	Pusher     Pusher
	Jobs       Jobs
	Cache      CachePurger
	Breakers   Breakers
	DB         Pinger
	Hub        *websocket.Hub
}

func (d *Deps) ready() bool {
	return d != nil && d.Scheduler != nil && d.States != nil && d.Catalogue != nil &&
		d.Categories != nil && d.Pusher != nil && d.Jobs != nil && d.Cache != nil
}

// Handler serves the admin API.
type Handler struct {
	deps      *Deps
	origins   []string
	startTime time.Time
}

// NewHandler creates a Handler. deps may be nil while the engine starts.
// origins are the websocket origins accepted, "*" for any.
func NewHandler(deps *Deps, origins []string) *Handler {
	return &Handler{deps: deps, origins: origins, startTime: time.Now()}
}
