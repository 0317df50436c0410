// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/models"
)

// Columns of raw_categories read by RefreshCategoriesFromRaw.
const (
	RawCategoryParentID = "parent_id"
	RawCategoryName     = "name"
	RawCategoryPosition = "position"
	RawCategoryImage    = "image"
	RawCategoryActive   = "active"
)

// CategoryRecord is a stored master row. It holds source values only;
// pending overrides are layered on top by the caller.
type CategoryRecord struct {
	TenantID       string
	ID             string
	SourceID       *string
	SourceParentID *string
	Name           string
	SortOrder      int64
	ImageRef       string
	Visible        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const categoryColumns = `tenant_id, id, source_id, source_parent_id, source_name,
	source_sort_order, source_image_ref, source_visible, created_at, updated_at`

// ListCategoryRecords returns every master row of a tenant.
func (db *DB) ListCategoryRecords(ctx context.Context, tenantID string) (records []CategoryRecord, err error) {
	start := time.Now()
	defer func() { observe("list", "categories", start, err) }()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	records = make([]CategoryRecord, 0)
	for rows.Next() {
		rec, err := scanCategoryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return records, nil
}

// GetCategoryRecord returns one master row.
func (db *DB) GetCategoryRecord(ctx context.Context, tenantID, id string) (*CategoryRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE tenant_id = ? AND id = ?`, tenantID, id)
	rec, err := scanCategoryRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanCategoryRecord(row scanner) (*CategoryRecord, error) {
	var (
		rec              CategoryRecord
		sourceID, parent sql.NullString
	)
	if err := row.Scan(&rec.TenantID, &rec.ID, &sourceID, &parent, &rec.Name,
		&rec.SortOrder, &rec.ImageRef, &rec.Visible, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.SourceID = stringPtr(sourceID)
	rec.SourceParentID = stringPtr(parent)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// InsertCategoryRecord stores a master row. Rows without a SourceID are
// local-only until the source assigns one.
func (db *DB) InsertCategoryRecord(ctx context.Context, rec CategoryRecord) error {
	now := db.timestamp()
	var sourceID, parent any
	if rec.SourceID != nil {
		sourceID = *rec.SourceID
	}
	if rec.SourceParentID != nil {
		parent = *rec.SourceParentID
	}
	_, err := db.conn.ExecContext(ctx, `INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TenantID, rec.ID, sourceID, parent, rec.Name,
		rec.SortOrder, rec.ImageRef, rec.Visible, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

// RefreshCategoriesFromRaw upserts the source_* columns of the master layer
// from raw_categories. Pending overrides are never touched.
func (db *DB) RefreshCategoriesFromRaw(ctx context.Context, raw RawTable, tenantID string) (n int64, err error) {
	start := time.Now()
	defer func() { observe("refresh", "categories", start, err) }()

	for _, name := range []string{RawCategoryParentID, RawCategoryName, RawCategoryPosition, RawCategoryImage, RawCategoryActive} {
		if !raw.hasColumn(name) {
			return 0, fmt.Errorf("%s has no column %q", raw.Name, name)
		}
	}
	if err := db.EnsureRawTable(ctx, raw); err != nil {
		return 0, err
	}

	now := db.timestamp()
	query := fmt.Sprintf(`INSERT INTO categories (%s)
		SELECT tenant_id, source_id, source_id, %s, COALESCE(%s, ''),
			COALESCE(%s, 0), COALESCE(%s, ''), COALESCE(%s, true), ?, ?
		FROM %s WHERE tenant_id = ?
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			source_parent_id = EXCLUDED.source_parent_id,
			source_name = EXCLUDED.source_name,
			source_sort_order = EXCLUDED.source_sort_order,
			source_image_ref = EXCLUDED.source_image_ref,
			source_visible = EXCLUDED.source_visible,
			updated_at = EXCLUDED.updated_at`,
		categoryColumns, RawCategoryParentID, RawCategoryName,
		RawCategoryPosition, RawCategoryImage, RawCategoryActive, raw.Name)

	res, err := db.conn.ExecContext(ctx, query, now, now, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh categories: %w", err)
	}
	return res.RowsAffected()
}

// PushedField is a field the source accepted, with the pending version
// that was sent.
type PushedField struct {
	Field   string
	Value   json.RawMessage
	Version time.Time
}

// ApplyPushedCategory folds accepted values into the source_* columns and
// deletes the matching pending rows in one transaction. A pending row is
// deleted only if its updated_at still equals the pushed version, so edits
// made while the push was in flight survive. It returns the number of
// deleted pending rows.
func (db *DB) ApplyPushedCategory(ctx context.Context, tenantID, entityID string, fields []PushedField) (deleted int64, err error) {
	start := time.Now()
	defer func() { observe("apply_pushed", "categories", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, err)
		}
	}()

	now := db.timestamp()
	for _, f := range fields {
		column, value, convErr := sourceColumnValue(f.Field, f.Value)
		if convErr != nil {
			return 0, convErr
		}
		query := fmt.Sprintf(`UPDATE categories SET %s = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`, column)
		if _, err = tx.ExecContext(ctx, query, value, now, tenantID, entityID); err != nil {
			return 0, fmt.Errorf("failed to update category %s: %w", f.Field, err)
		}

		res, execErr := tx.ExecContext(ctx, `DELETE FROM pending_overrides
			WHERE tenant_id = ? AND entity_id = ? AND field = ? AND updated_at = ?`,
			tenantID, entityID, f.Field, f.Version.UTC())
		if execErr != nil {
			err = execErr
			return 0, fmt.Errorf("failed to delete pending override: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

// sourceColumnValue maps an overridable field to its source_* column and
// decodes the JSON value into the column type.
func sourceColumnValue(field string, raw json.RawMessage) (string, any, error) {
	switch field {
	case models.FieldName:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("invalid %s value: %w", field, err)
		}
		return "source_name", s, nil
	case models.FieldImageRef:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("invalid %s value: %w", field, err)
		}
		return "source_image_ref", s, nil
	case models.FieldSortOrder:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", nil, fmt.Errorf("invalid %s value: %w", field, err)
		}
		return "source_sort_order", n, nil
	case models.FieldVisible:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", nil, fmt.Errorf("invalid %s value: %w", field, err)
		}
		return "source_visible", b, nil
	case models.FieldParentID:
		var s *string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("invalid %s value: %w", field, err)
		}
		if s == nil || *s == "" {
			return "source_parent_id", nil, nil
		}
		return "source_parent_id", *s, nil
	default:
		return "", nil, fmt.Errorf("field %q is not overridable", field)
	}
}
