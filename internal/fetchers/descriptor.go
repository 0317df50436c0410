// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package fetchers

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/source"
)

// Column maps one source field onto a raw column.
type Column struct {
	Name  string // raw column name
	Field string // source JSON field
	Kind  database.ColumnKind
}

// Transform maps a decoded source record onto a raw row.
type Transform func(rec models.SourceRecord) (database.Row, error)

// Descriptor describes how one entity type is fetched and stored.
type Descriptor struct {
	EntityType    string
	Domain        string
	Resource      string
	Pagination    source.Pagination
	PageSize      int // 0 = runner default
	NaturalKey    string
	ModifiedField string
	Columns       []Column
	Incremental   bool
	Reference     bool
	Transform     Transform // nil = DefaultTransform
}

var entityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,58}$`)

// Validate checks the descriptor before it is registered.
func (d Descriptor) Validate() error {
	if !entityTypePattern.MatchString(d.EntityType) {
		return fmt.Errorf("invalid entity type %q", d.EntityType)
	}
	if d.Domain == "" || d.Resource == "" {
		return fmt.Errorf("entity type %s requires a domain and a resource", d.EntityType)
	}
	if d.Reference && d.Incremental {
		return fmt.Errorf("reference entity type %s cannot sync incrementally", d.EntityType)
	}
	return d.RawTable().Validate()
}

// RawTable returns the raw_<entity> table the descriptor writes to.
func (d Descriptor) RawTable() database.RawTable {
	cols := make([]database.Column, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = database.Column{Name: c.Name, Kind: c.Kind}
	}
	return database.RawTable{Name: "raw_" + d.EntityType, Columns: cols}
}

// Endpoint returns the listing path with a {tenant} placeholder.
func (d Descriptor) Endpoint() string {
	resource := d.Resource
	if d.Pagination == source.PaginationContinuation {
		resource = "export/" + resource
	}
	return fmt.Sprintf("%s/v2/tenant/{tenant}/%s", d.Domain, strings.TrimLeft(resource, "/"))
}

// SyncTypeFor returns the sync type a run of the requested type is recorded
// as. Reference entities always record reference walks; incremental
// requests on non-incremental entities become full walks.
func (d Descriptor) SyncTypeFor(requested string) string {
	if d.Reference {
		return models.SyncTypeReference
	}
	if requested == models.SyncTypeIncremental && !d.Incremental {
		return models.SyncTypeFull
	}
	if requested == models.SyncTypeReference {
		return models.SyncTypeFull
	}
	return requested
}

func (d Descriptor) naturalKey() string {
	if d.NaturalKey == "" {
		return "id"
	}
	return d.NaturalKey
}

func (d Descriptor) modifiedField() string {
	if d.ModifiedField == "" {
		return "modifiedOn"
	}
	return d.ModifiedField
}

func (d Descriptor) transform(rec models.SourceRecord) (database.Row, error) {
	if d.Transform != nil {
		return d.Transform(rec)
	}
	return DefaultTransform(d)(rec)
}

// DecodeRecord decodes one page item. Numbers keep their literal form so
// large ids survive.
func DecodeRecord(tenantID string, d Descriptor, raw json.RawMessage) (models.SourceRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return models.SourceRecord{}, fmt.Errorf("failed to decode %s record: %w", d.EntityType, err)
	}
	if fields == nil {
		return models.SourceRecord{}, source.NewValidationError(d.naturalKey(), "record is not an object")
	}

	rec := models.SourceRecord{
		TenantID:   tenantID,
		Fields:     fields,
		RawPayload: raw,
	}
	rec.SourceID = rec.String(d.naturalKey())
	if rec.SourceID == "" {
		return models.SourceRecord{}, source.NewValidationError(d.naturalKey(), "record has no natural key")
	}
	if s, ok := fields[d.modifiedField()].(string); ok && s != "" {
		if t, err := parseTime(s); err == nil {
			rec.ModifiedOn = &t
		}
	}
	return rec, nil
}

// DefaultTransform copies each mapped field into its column. Missing and
// null fields store NULL. Timestamps are normalized to UTC; any other kind
// mismatch is left for the store to reject.
func DefaultTransform(d Descriptor) Transform {
	return func(rec models.SourceRecord) (database.Row, error) {
		values := make(map[string]any, len(d.Columns))
		for _, col := range d.Columns {
			v, ok := rec.Fields[col.Field]
			if !ok || v == nil {
				continue
			}
			if col.Kind == database.KindTimestamp {
				s, isString := v.(string)
				if !isString {
					return database.Row{}, fmt.Errorf("%s.%s: %w: %T is not a timestamp", d.EntityType, col.Field, database.ErrKindMismatch, v)
				}
				t, err := parseTime(s)
				if err != nil {
					return database.Row{}, fmt.Errorf("%s.%s: %w", d.EntityType, col.Field, err)
				}
				v = t
			}
			values[col.Name] = v
		}
		return database.Row{
			TenantID:   rec.TenantID,
			SourceID:   rec.SourceID,
			RawPayload: rec.RawPayload,
			ModifiedOn: rec.ModifiedOn,
			Values:     values,
		}, nil
	}
}

// The source usually sends RFC 3339, but some resources omit the zone.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

var errBadTimestamp = errors.New("unrecognized timestamp")

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errBadTimestamp, s)
}
