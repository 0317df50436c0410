// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestSourceRecordAccessors(t *testing.T) {
	t.Parallel()
	var fields map[string]any
	if err := json.Unmarshal([]byte(`{"id":42,"name":"Plumbing","active":false,"code":"17"}`), &fields); err != nil {
		t.Fatal(err)
	}
	r := SourceRecord{Fields: fields}

	if got := r.String("id"); got != "42" {
		t.Errorf("String(id) = %q, want 42", got)
	}
	if got := r.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
	if got := r.Int("id"); got != 42 {
		t.Errorf("Int(id) = %d, want 42", got)
	}
	if got := r.Int("code"); got != 17 {
		t.Errorf("Int(code) = %d, want 17", got)
	}
	if got := r.Bool("active", true); got {
		t.Error("Bool(active) = true, want false")
	}
	if got := r.Bool("missing", true); !got {
		t.Error("Bool(missing, true) should return default")
	}
}

func TestSyncStateWatermark(t *testing.T) {
	t.Parallel()
	full := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inc := full.Add(time.Hour)

	s := &SyncState{}
	if s.Watermark() != nil {
		t.Error("empty state should have no watermark")
	}
	s.LastFullSyncAt = &full
	if got := s.Watermark(); got == nil || !got.Equal(full) {
		t.Errorf("Watermark() = %v, want %v", got, full)
	}
	s.LastIncrementalSyncAt = &inc
	if got := s.Watermark(); !got.Equal(inc) {
		t.Errorf("Watermark() = %v, want %v", got, inc)
	}
}

func TestIsOverridable(t *testing.T) {
	t.Parallel()
	for _, f := range OverridableFields {
		if !IsOverridable(f) {
			t.Errorf("IsOverridable(%q) = false", f)
		}
	}
	for _, f := range []string{"id", "sourceId", "children", ""} {
		if IsOverridable(f) {
			t.Errorf("IsOverridable(%q) = true", f)
		}
	}
}
