// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package fetchers

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/source"
)

func TestDefaultCatalogue(t *testing.T) {
	t.Parallel()
	c := DefaultCatalogue()

	got := c.EntityTypes()
	want := []string{
		EntityCustomers, EntityLocations, EntityWorkOrders, EntityCategories,
		EntityServices, EntityTechnicians, EntityBusinessUnits, EntityJobTypes,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("EntityTypes() = %v, want %v", got, want)
	}

	d, ok := c.Get(EntityWorkOrders)
	if !ok {
		t.Fatal("work_orders missing")
	}
	if d.Endpoint() != "jpm/v2/tenant/{tenant}/export/jobs" {
		t.Errorf("Endpoint() = %q", d.Endpoint())
	}
	if d.RawTable().Name != "raw_work_orders" {
		t.Errorf("RawTable().Name = %q", d.RawTable().Name)
	}
}

func TestCatalogueSelect(t *testing.T) {
	t.Parallel()
	c := DefaultCatalogue()

	tests := []struct {
		syncType  string
		requested []string
		want      []string
	}{
		{models.SyncTypeIncremental, nil, []string{EntityCustomers, EntityLocations, EntityWorkOrders, EntityCategories, EntityServices}},
		{models.SyncTypeReference, nil, []string{EntityTechnicians, EntityBusinessUnits, EntityJobTypes}},
		{models.SyncTypeFull, []string{EntityJobTypes, EntityCustomers}, []string{EntityCustomers, EntityJobTypes}},
	}
	for _, tt := range tests {
		got, err := c.Select(tt.syncType, tt.requested)
		if err != nil {
			t.Errorf("Select(%s, %v) error = %v", tt.syncType, tt.requested, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Select(%s, %v) = %v, want %v", tt.syncType, tt.requested, got, tt.want)
		}
	}
	if all, _ := c.Select(models.SyncTypeFull, nil); len(all) != 8 {
		t.Errorf("full selection = %d types, want 8", len(all))
	}

	var verr *source.ValidationError
	if _, err := c.Select(models.SyncTypeFull, []string{"customers", "invoices"}); !errors.As(err, &verr) {
		t.Errorf("unknown entity error = %v, want ValidationError", err)
	}
}

func TestCatalogueRestrict(t *testing.T) {
	t.Parallel()
	c, err := DefaultCatalogue().Restrict([]string{EntityCategories})
	if err != nil {
		t.Fatalf("Restrict() error = %v", err)
	}
	if got := c.EntityTypes(); len(got) != 1 || got[0] != EntityCategories {
		t.Errorf("EntityTypes() = %v", got)
	}
	if _, err := DefaultCatalogue().Restrict([]string{"nope"}); err == nil {
		t.Error("Restrict() accepted an unknown type")
	}
}

func TestNewCatalogue_Rejects(t *testing.T) {
	t.Parallel()
	valid := Descriptor{EntityType: "things", Domain: "crm", Resource: "things"}

	cases := map[string][]Descriptor{
		"duplicate":       {valid, valid},
		"bad name":        {{EntityType: "Things!", Domain: "crm", Resource: "x"}},
		"no resource":     {{EntityType: "things", Domain: "crm"}},
		"reserved column": {{EntityType: "things", Domain: "crm", Resource: "x", Columns: []Column{{Name: "source_id", Field: "id"}}}},
		"incremental ref": {{EntityType: "things", Domain: "crm", Resource: "x", Reference: true, Incremental: true}},
	}
	for name, ds := range cases {
		if _, err := NewCatalogue(ds...); err == nil {
			t.Errorf("%s: NewCatalogue() succeeded", name)
		}
	}
}

func TestSyncTypeFor(t *testing.T) {
	t.Parallel()
	c := DefaultCatalogue()
	customers, _ := c.Get(EntityCustomers)
	technicians, _ := c.Get(EntityTechnicians)

	tests := []struct {
		d         Descriptor
		requested string
		want      string
	}{
		{customers, models.SyncTypeIncremental, models.SyncTypeIncremental},
		{customers, models.SyncTypeFull, models.SyncTypeFull},
		{customers, models.SyncTypeReference, models.SyncTypeFull},
		{technicians, models.SyncTypeIncremental, models.SyncTypeReference},
		{technicians, models.SyncTypeFull, models.SyncTypeReference},
	}
	for _, tt := range tests {
		if got := tt.d.SyncTypeFor(tt.requested); got != tt.want {
			t.Errorf("%s.SyncTypeFor(%s) = %s, want %s", tt.d.EntityType, tt.requested, got, tt.want)
		}
	}
}

func TestDecodeRecordAndTransform(t *testing.T) {
	t.Parallel()
	d, _ := DefaultCatalogue().Get(EntityCategories)
	raw := json.RawMessage(`{"id":9007199254740993,"name":"Drains","parentId":12,"position":3,
		"active":true,"businessUnitIds":[1,2],"modifiedOn":"2026-03-04T05:06:07.123Z"}`)

	rec, err := DecodeRecord("acme", d, raw)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if rec.SourceID != "9007199254740993" {
		t.Errorf("SourceID = %q, want the exact large id", rec.SourceID)
	}
	wantModified := time.Date(2026, 3, 4, 5, 6, 7, 123000000, time.UTC)
	if rec.ModifiedOn == nil || !rec.ModifiedOn.Equal(wantModified) {
		t.Errorf("ModifiedOn = %v, want %v", rec.ModifiedOn, wantModified)
	}

	row, err := DefaultTransform(d)(rec)
	if err != nil {
		t.Fatalf("DefaultTransform() error = %v", err)
	}
	if row.TenantID != "acme" || row.SourceID != rec.SourceID || string(row.RawPayload) != string(raw) {
		t.Errorf("row identity = %s/%s", row.TenantID, row.SourceID)
	}
	if _, ok := row.Values[database.RawCategoryImage]; ok {
		t.Error("missing image field was mapped")
	}
	if row.Values[database.RawCategoryParentID] != json.Number("12") {
		t.Errorf("parent_id = %#v", row.Values[database.RawCategoryParentID])
	}

	if _, err := DecodeRecord("acme", d, json.RawMessage(`{"name":"orphan"}`)); err == nil {
		t.Error("record without id decoded")
	}
	if _, err := DecodeRecord("acme", d, json.RawMessage(`[1,2]`)); err == nil {
		t.Error("array record decoded")
	}
}

func TestDefaultTransform_Timestamps(t *testing.T) {
	t.Parallel()
	d, _ := DefaultCatalogue().Get(EntityCustomers)

	row, err := DefaultTransform(d)(models.SourceRecord{
		TenantID: "acme",
		SourceID: "1",
		Fields:   map[string]any{"createdOn": "2026-01-02T03:04:05"},
	})
	if err != nil {
		t.Fatalf("DefaultTransform() error = %v", err)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if got, ok := row.Values["created_on"].(time.Time); !ok || !got.Equal(want) {
		t.Errorf("created_on = %#v, want %v", row.Values["created_on"], want)
	}

	_, err = DefaultTransform(d)(models.SourceRecord{
		TenantID: "acme",
		SourceID: "1",
		Fields:   map[string]any{"createdOn": json.Number("12")},
	})
	if !errors.Is(err, database.ErrKindMismatch) {
		t.Errorf("numeric timestamp error = %v, want ErrKindMismatch", err)
	}
}
