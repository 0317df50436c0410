// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/auth"
	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/pushback"
	"github.com/tomtom215/fieldsync/internal/scheduler"
	"github.com/tomtom215/fieldsync/internal/source"
)

const testTenant = "tenant-a"

type mockScheduler struct {
	triggerFn func(ctx context.Context, tenantID, syncType string, opts scheduler.Options) (string, error)
	running   bool
}

func (m *mockScheduler) TriggerManual(ctx context.Context, tenantID, syncType string, opts scheduler.Options) (string, error) {
	if m.triggerFn != nil {
		return m.triggerFn(ctx, tenantID, syncType, opts)
	}
	return "job-1", nil
}

func (m *mockScheduler) Running() bool { return m.running }

type mockStates struct {
	cancelFn  func(ctx context.Context, tenantID, entityType string) (string, error)
	statesFn  func(ctx context.Context, tenantID string) ([]models.SyncState, error)
	historyFn func(ctx context.Context, tenantID, entityType string, limit int) ([]models.SyncRun, error)
}

func (m *mockStates) Cancel(ctx context.Context, tenantID, entityType string) (string, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, tenantID, entityType)
	}
	return "", nil
}

func (m *mockStates) States(ctx context.Context, tenantID string) ([]models.SyncState, error) {
	if m.statesFn != nil {
		return m.statesFn(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockStates) History(ctx context.Context, tenantID, entityType string, limit int) ([]models.SyncRun, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, tenantID, entityType, limit)
	}
	return nil, nil
}

// mockCatalogue knows a fixed set of entity types.
type mockCatalogue struct {
	types []string
}

func (m *mockCatalogue) Select(_ string, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return m.types, nil
	}
	for _, r := range requested {
		known := false
		for _, t := range m.types {
			if t == r {
				known = true
			}
		}
		if !known {
			return nil, source.NewValidationError("entityTypes", "unknown entity type %q", r)
		}
	}
	return requested, nil
}

type mockCategories struct {
	listTreeFn     func(ctx context.Context, tenantID string, filter categories.Filter) ([]*models.Category, error)
	pendingFn      func(ctx context.Context, tenantID string) ([]models.PendingOverride, error)
	overrideFn     func(ctx context.Context, tenantID, entityID, field string, value json.RawMessage) (*models.Category, error)
	moveFn         func(ctx context.Context, tenantID, entityID, newParentID string, position int) (*models.Category, error)
	moveToTopFn    func(ctx context.Context, tenantID, entityID string) (*models.Category, error)
	moveToBottomFn func(ctx context.Context, tenantID, entityID string) (*models.Category, error)
}

func (m *mockCategories) ListTree(ctx context.Context, tenantID string, filter categories.Filter) ([]*models.Category, error) {
	if m.listTreeFn != nil {
		return m.listTreeFn(ctx, tenantID, filter)
	}
	return nil, nil
}

func (m *mockCategories) Pending(ctx context.Context, tenantID string) ([]models.PendingOverride, error) {
	if m.pendingFn != nil {
		return m.pendingFn(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockCategories) ApplyOverride(ctx context.Context, tenantID, entityID, field string, value json.RawMessage) (*models.Category, error) {
	if m.overrideFn != nil {
		return m.overrideFn(ctx, tenantID, entityID, field, value)
	}
	return &models.Category{ID: entityID, TenantID: tenantID}, nil
}

func (m *mockCategories) Move(ctx context.Context, tenantID, entityID, newParentID string, position int) (*models.Category, error) {
	if m.moveFn != nil {
		return m.moveFn(ctx, tenantID, entityID, newParentID, position)
	}
	return &models.Category{ID: entityID, TenantID: tenantID}, nil
}

func (m *mockCategories) MoveToTop(ctx context.Context, tenantID, entityID string) (*models.Category, error) {
	if m.moveToTopFn != nil {
		return m.moveToTopFn(ctx, tenantID, entityID)
	}
	return &models.Category{ID: entityID, TenantID: tenantID}, nil
}

func (m *mockCategories) MoveToBottom(ctx context.Context, tenantID, entityID string) (*models.Category, error) {
	if m.moveToBottomFn != nil {
		return m.moveToBottomFn(ctx, tenantID, entityID)
	}
	return &models.Category{ID: entityID, TenantID: tenantID}, nil
}

type mockPusher struct {
	pushFn func(ctx context.Context, tenantID, entityType string) (pushback.Result, error)
}

func (m *mockPusher) PushPending(ctx context.Context, tenantID, entityType string) (pushback.Result, error) {
	if m.pushFn != nil {
		return m.pushFn(ctx, tenantID, entityType)
	}
	return pushback.Result{}, nil
}

type mockJobs struct {
	listFn  func(ctx context.Context, filter database.JobFilter) ([]models.Job, error)
	statsFn func(ctx context.Context) (models.JobStats, error)
	getFn   func(ctx context.Context, id string) (*models.Job, error)
	retryFn func(ctx context.Context, id string) (*models.Job, error)
}

func (m *mockJobs) List(ctx context.Context, filter database.JobFilter) ([]models.Job, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockJobs) Stats(ctx context.Context) (models.JobStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return models.JobStats{}, nil
}

func (m *mockJobs) Get(ctx context.Context, id string) (*models.Job, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &models.Job{ID: id, TenantID: testTenant, Status: models.JobStatusFailed}, nil
}

func (m *mockJobs) Retry(ctx context.Context, id string) (*models.Job, error) {
	if m.retryFn != nil {
		return m.retryFn(ctx, id)
	}
	return &models.Job{ID: id, TenantID: testTenant, Status: models.JobStatusQueued}, nil
}

type mockCache struct {
	purgeFn func(ctx context.Context, tenantID, entityType string) (int64, error)
}

func (m *mockCache) Purge(ctx context.Context, tenantID, entityType string) (int64, error) {
	if m.purgeFn != nil {
		return m.purgeFn(ctx, tenantID, entityType)
	}
	return 0, nil
}

type mockBreakers struct {
	states map[string]string
	err    error
}

func (m *mockBreakers) BreakerStates(string) (map[string]string, error) {
	return m.states, m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

// testDeps returns fully wired mocks with a running scheduler.
func testDeps() *Deps {
	return &Deps{
		Scheduler:  &mockScheduler{running: true},
		States:     &mockStates{},
		Catalogue:  &mockCatalogue{types: []string{"customers", "jobs", pushback.EntityType}},
		Categories: &mockCategories{},
		Pusher:     &mockPusher{},
		Jobs:       &mockJobs{},
		Cache:      &mockCache{},
		Breakers:   &mockBreakers{},
		DB:         &mockPinger{},
	}
}

// serve runs one request against fn with the tenant subject and chi URL
// params set, as the router would.
func serve(t *testing.T, fn http.HandlerFunc, method, target, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := auth.ContextWithSubject(req.Context(), &auth.AuthSubject{
		ID:       "operator-1",
		TenantID: testTenant,
		Roles:    []string{auth.RoleOperator},
	})
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	rec := httptest.NewRecorder()
	fn(rec, req.WithContext(ctx))
	return rec
}

// decodeEnvelope decodes the response envelope and unmarshals Data into data
// when data is non-nil.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
		Meta    *APIMeta        `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.NewDecoder(bytes.NewReader(raw.Data)).Decode(data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return APIResponse{Success: raw.Success, Error: raw.Error, Meta: raw.Meta}
}
