// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package pushback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/fetchers"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/notify"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
	"github.com/tomtom215/fieldsync/internal/testinfra"
)

type mockWriter struct {
	mu      sync.Mutex
	calls   []string
	patches map[string]map[string]any

	updateFunc func(ctx context.Context, sourceID string, patch map[string]any) error
}

func (m *mockWriter) UpdateCategory(ctx context.Context, sourceID string, patch map[string]any) error {
	m.mu.Lock()
	m.calls = append(m.calls, sourceID)
	if m.patches == nil {
		m.patches = make(map[string]map[string]any)
	}
	m.patches[sourceID] = patch
	fn := m.updateFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, sourceID, patch)
	}
	return nil
}

func (m *mockWriter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type fixture struct {
	db         *database.DB
	categories *categories.Service
	tracker    *syncstate.Tracker
	writer     *mockWriter
	reconciler *Reconciler
	events     *eventLog
}

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) Publish(_ context.Context, e notify.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.Type)
	return nil
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.types {
		if t == eventType {
			n++
		}
	}
	return n
}

// setup seeds three root categories (1, 2, 3) and wires a reconciler over
// a mock writer.
func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testinfra.NewTestDB(t)
	d, _ := fetchers.DefaultCatalogue().Get(fetchers.EntityCategories)
	table := d.RawTable()

	for i, name := range []string{"Plumbing", "Electrical", "HVAC"} {
		row := database.Row{
			TenantID: "acme",
			SourceID: string(rune('1' + i)),
			Values: map[string]any{
				database.RawCategoryName:     name,
				database.RawCategoryPosition: int64(i),
				database.RawCategoryActive:   true,
			},
		}
		if err := db.UpsertRaw(ctx, table, row); err != nil {
			t.Fatalf("UpsertRaw() error = %v", err)
		}
	}

	svc := categories.New(db, table, nil)
	if _, err := svc.RefreshFromRaw(ctx, "acme"); err != nil {
		t.Fatalf("RefreshFromRaw() error = %v", err)
	}

	events := &eventLog{}
	tracker := syncstate.New(db, events, 0)
	writer := &mockWriter{}
	rec := New(db, tracker, func(string) (provider.CategoryWriter, error) { return writer, nil }, events)
	return &fixture{db: db, categories: svc, tracker: tracker, writer: writer, reconciler: rec, events: events}
}

func (f *fixture) override(t *testing.T, entityID, field, value string) {
	t.Helper()
	if _, err := f.categories.ApplyOverride(context.Background(), "acme", entityID, field, json.RawMessage(value)); err != nil {
		t.Fatalf("ApplyOverride(%s, %s) error = %v", entityID, field, err)
	}
}

func (f *fixture) pending(t *testing.T) map[string]models.PendingOverride {
	t.Helper()
	rows, err := f.db.ListPending(context.Background(), "acme", EntityType)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	out := make(map[string]models.PendingOverride, len(rows))
	for _, o := range rows {
		out[o.EntityID+"."+o.Field] = o
	}
	return out
}

func (f *fixture) status(t *testing.T) string {
	t.Helper()
	state, err := f.tracker.State(context.Background(), "acme", EntityType)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	return state.Status
}

func TestPushPending_PartialRejection(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	f.override(t, "1", models.FieldName, `"Plumbing & Gas"`)
	f.override(t, "2", models.FieldName, `"Electric"`)
	f.override(t, "3", models.FieldVisible, `false`)

	f.writer.updateFunc = func(_ context.Context, sourceID string, _ map[string]any) error {
		if sourceID == "2" {
			return &source.ConflictError{Op: "PATCH categories/2", StatusCode: 409, Body: "version mismatch"}
		}
		return nil
	}

	res, err := f.reconciler.PushPending(ctx, "acme", EntityType)
	if err != nil {
		t.Fatalf("PushPending() error = %v", err)
	}
	if res.Updated != 2 || res.Failed != 1 {
		t.Errorf("PushPending() = {updated %d, failed %d}, want {2, 1}", res.Updated, res.Failed)
	}
	if res.Deleted != 2 || res.Remaining != 1 {
		t.Errorf("deleted = %d, remaining = %d, want 2, 1", res.Deleted, res.Remaining)
	}
	if res.Stopped {
		t.Error("a conflict must not stop the batch")
	}
	if len(res.Errors) != 1 || res.Errors[0].EntityID != "2" || res.Errors[0].Kind != source.KindConflict {
		t.Errorf("Errors = %+v, want one conflict for entity 2", res.Errors)
	}

	pending := f.pending(t)
	if len(pending) != 1 {
		t.Fatalf("pending = %v, want only 2.name", pending)
	}
	left := pending["2.name"]
	if left.Attempts != 1 || left.LastError == "" {
		t.Errorf("2.name attempts = %d, lastError = %q", left.Attempts, left.LastError)
	}
	if left.PushedAt != nil {
		t.Errorf("2.name pushedAt = %v, want unset for a rejected push", left.PushedAt)
	}

	rec, err := f.db.GetCategoryRecord(ctx, "acme", "1")
	if err != nil {
		t.Fatalf("GetCategoryRecord() error = %v", err)
	}
	if rec.Name != "Plumbing & Gas" {
		t.Errorf("source name = %q, want pushed value", rec.Name)
	}
	if got := f.writer.patches["3"]; len(got) != 1 || got["active"] != false {
		t.Errorf("patch for 3 = %v, want {active: false}", got)
	}
	if got := f.events.count(notify.EventCategoryUpdated); got < 2 {
		t.Errorf("category:updated events = %d, want at least 2", got)
	}
	if got := f.status(t); got != models.SyncStatusCompleted {
		t.Errorf("slot status = %q, want completed", got)
	}
}

func TestPushPending_StopsOnRateLimit(t *testing.T) {
	t.Parallel()
	f := setup(t)

	f.override(t, "1", models.FieldSortOrder, `5`)
	f.override(t, "2", models.FieldSortOrder, `6`)
	f.override(t, "3", models.FieldSortOrder, `7`)

	f.writer.updateFunc = func(_ context.Context, sourceID string, _ map[string]any) error {
		if sourceID == "2" {
			return &source.RateLimitError{Op: "PATCH categories/2", Attempts: 3, RetryAfter: time.Minute}
		}
		return nil
	}

	res, err := f.reconciler.PushPending(context.Background(), "acme", EntityType)
	if err != nil {
		t.Fatalf("PushPending() error = %v", err)
	}
	if !res.Stopped || source.Kind(res.Err) != source.KindRateLimit {
		t.Fatalf("Stopped = %v, Err = %v, want a rate-limit stop", res.Stopped, res.Err)
	}
	if d, ok := source.RetryAfter(res.Err); !ok || d != time.Minute {
		t.Errorf("RetryAfter = %v, %v", d, ok)
	}
	if got := f.writer.callCount(); got != 2 {
		t.Errorf("writes = %d, want 2 (none after the stop)", got)
	}
	if res.Updated != 1 || res.Failed != 0 || res.Remaining != 2 {
		t.Errorf("Result = %+v", res)
	}
	if _, ok := f.pending(t)["1.sortOrder"]; ok {
		t.Error("the confirmed delete before the stop must be kept")
	}
	if got := f.status(t); got != models.SyncStatusFailed {
		t.Errorf("slot status = %q, want failed", got)
	}
}

func TestPushPending_EditDuringPushSurvives(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.override(t, "1", models.FieldName, `"First"`)

	f.writer.updateFunc = func(ctx context.Context, _ string, _ map[string]any) error {
		// A dashboard edit lands while the PATCH is in flight.
		_, err := f.categories.ApplyOverride(ctx, "acme", "1", models.FieldName, json.RawMessage(`"Second"`))
		return err
	}

	res, err := f.reconciler.PushPending(context.Background(), "acme", EntityType)
	if err != nil {
		t.Fatalf("PushPending() error = %v", err)
	}
	if res.Updated != 1 || res.Deleted != 0 || res.Remaining != 1 {
		t.Errorf("Result = %+v, want updated 1, deleted 0, remaining 1", res)
	}
	left, ok := f.pending(t)["1.name"]
	if !ok || string(left.Value) != `"Second"` {
		t.Errorf("pending 1.name = %s, want the newer edit", left.Value)
	}

	node, err := f.categories.Get(context.Background(), "acme", "1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if node.Name != "Second" {
		t.Errorf("effective name = %q, want Second", node.Name)
	}
}

func TestPushPending_LocalOnlyAndUnsupported(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()

	if err := f.db.InsertCategoryRecord(ctx, database.CategoryRecord{
		TenantID: "acme", ID: "local-1", Name: "Draft", Visible: true,
	}); err != nil {
		t.Fatalf("InsertCategoryRecord() error = %v", err)
	}
	f.override(t, "local-1", models.FieldName, `"Draft 2"`)

	res, err := f.reconciler.PushPending(ctx, "acme", EntityType)
	if err != nil {
		t.Fatalf("PushPending() error = %v", err)
	}
	if res.Failed != 1 || len(res.Errors) != 1 || res.Errors[0].Kind != source.KindValidation {
		t.Errorf("Result = %+v, want one validation item error", res)
	}
	if f.writer.callCount() != 0 {
		t.Error("local-only entities must not be written")
	}

	_, err = f.reconciler.PushPending(ctx, "acme", fetchers.EntityCustomers)
	var verr *source.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("PushPending(customers) error = %v, want ValidationError", err)
	}
}

func TestPushPending_SlotHeldByInboundSync(t *testing.T) {
	t.Parallel()
	f := setup(t)
	ctx := context.Background()
	f.override(t, "1", models.FieldName, `"Held"`)

	if _, err := f.tracker.Start(ctx, "acme", EntityType, models.SyncTypeIncremental); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	_, err := f.reconciler.PushPending(ctx, "acme", EntityType)
	if !errors.Is(err, syncstate.ErrSyncAlreadyRunning) {
		t.Fatalf("PushPending() error = %v, want ErrSyncAlreadyRunning", err)
	}
	if f.writer.callCount() != 0 {
		t.Error("no write may be issued without the slot")
	}
}

func TestBuildPatch(t *testing.T) {
	t.Parallel()
	rows := []models.PendingOverride{
		{Field: models.FieldName, Value: json.RawMessage(`"Drains"`)},
		{Field: models.FieldImageRef, Value: json.RawMessage(`"img/drains.png"`)},
		{Field: models.FieldSortOrder, Value: json.RawMessage(`4`)},
		{Field: models.FieldVisible, Value: json.RawMessage(`true`)},
		{Field: models.FieldParentID, Value: json.RawMessage(`"42"`)},
	}
	patch, err := buildPatch(rows)
	if err != nil {
		t.Fatalf("buildPatch() error = %v", err)
	}
	want := map[string]any{"name": "Drains", "image": "img/drains.png", "position": int64(4), "active": true, "parentId": int64(42)}
	for k, v := range want {
		if patch[k] != v {
			t.Errorf("patch[%s] = %#v, want %#v", k, patch[k], v)
		}
	}

	patch, err = buildPatch([]models.PendingOverride{{Field: models.FieldParentID, Value: json.RawMessage(`null`)}})
	if err != nil || patch["parentId"] != nil {
		t.Errorf("buildPatch(null parent) = %v, %v", patch, err)
	}
	if v, ok := patch["parentId"]; !ok || v != nil {
		t.Error("a cleared parent must be sent as an explicit null")
	}
}
