// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package database

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ColumnKind is the storage kind of a mapped raw column.
type ColumnKind int

const (
	// KindScalar is free text (VARCHAR).
	KindScalar ColumnKind = iota
	// KindTextArray is a native VARCHAR[] list.
	KindTextArray
	// KindIntArray is a native BIGINT[] list.
	KindIntArray
	// KindDocument is JSON text in a VARCHAR column.
	KindDocument
	KindTimestamp
	KindBool
	KindInt
	KindFloat
)

func (k ColumnKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindTextArray:
		return "text_array"
	case KindIntArray:
		return "int_array"
	case KindDocument:
		return "document"
	case KindTimestamp:
		return "timestamp"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

func (k ColumnKind) sqlType() string {
	switch k {
	case KindTextArray:
		return "VARCHAR[]"
	case KindIntArray:
		return "BIGINT[]"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindBool:
		return "BOOLEAN"
	case KindInt:
		return "BIGINT"
	case KindFloat:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

// Column is one mapped column of a raw table.
type Column struct {
	Name string
	Kind ColumnKind
}

// RawTable describes a raw_<entity> table. Every raw table also carries
// tenant_id, source_id, raw_payload, modified_on and synced_at.
type RawTable struct {
	Name    string
	Columns []Column
}

// Row is one source record mapped onto a raw table.
type Row struct {
	TenantID   string
	SourceID   string
	RawPayload []byte
	ModifiedOn *time.Time
	Values     map[string]any
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

var reservedRawColumns = map[string]bool{
	"tenant_id":   true,
	"source_id":   true,
	"raw_payload": true,
	"modified_on": true,
	"synced_at":   true,
}

// Validate checks table and column names before they are interpolated
// into SQL.
func (t RawTable) Validate() error {
	if !strings.HasPrefix(t.Name, "raw_") || !identifierPattern.MatchString(t.Name) {
		return fmt.Errorf("invalid raw table name %q", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		if !identifierPattern.MatchString(col.Name) {
			return fmt.Errorf("invalid column name %q in %s", col.Name, t.Name)
		}
		if reservedRawColumns[col.Name] {
			return fmt.Errorf("column %q is reserved in %s", col.Name, t.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate column %q in %s", col.Name, t.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

// EnsureRawTable creates the raw table if it does not exist.
func (db *DB) EnsureRawTable(ctx context.Context, t RawTable) error {
	if err := t.Validate(); err != nil {
		return err
	}

	db.rawTablesMu.Lock()
	defer db.rawTablesMu.Unlock()
	if db.rawTables[t.Name] {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, `CREATE TABLE IF NOT EXISTS %s (
			tenant_id VARCHAR NOT NULL,
			source_id VARCHAR NOT NULL,
			raw_payload VARCHAR NOT NULL,
			modified_on TIMESTAMP,
			synced_at TIMESTAMP NOT NULL`, t.Name)
	for _, col := range t.Columns {
		fmt.Fprintf(&b, ",\n\t\t\t%s %s", col.Name, col.Kind.sqlType())
	}
	b.WriteString(",\n\t\t\tPRIMARY KEY (tenant_id, source_id)\n\t\t)")

	if _, err := db.conn.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create %s: %w", t.Name, err)
	}
	db.rawTables[t.Name] = true
	return nil
}

// UpsertRaw writes one record with a single INSERT ... ON CONFLICT
// statement. Replaying the same record leaves the row unchanged apart from
// synced_at.
func (db *DB) UpsertRaw(ctx context.Context, t RawTable, row Row) (err error) {
	start := time.Now()
	defer func() { observe("upsert", t.Name, start, err) }()

	if err := db.EnsureRawTable(ctx, t); err != nil {
		return err
	}
	if row.TenantID == "" || row.SourceID == "" {
		return fmt.Errorf("raw row for %s requires tenant_id and source_id", t.Name)
	}
	for name := range row.Values {
		if !t.hasColumn(name) {
			return fmt.Errorf("%s has no column %q", t.Name, name)
		}
	}

	payload := string(row.RawPayload)
	if payload == "" {
		payload = "{}"
	}
	var modifiedOn any
	if row.ModifiedOn != nil {
		modifiedOn = row.ModifiedOn.UTC()
	}

	names := []string{"tenant_id", "source_id", "raw_payload", "modified_on", "synced_at"}
	exprs := []string{"?", "?", "?", "?", "?"}
	args := []any{row.TenantID, row.SourceID, payload, modifiedOn, db.timestamp()}

	for _, col := range t.Columns {
		expr, colArgs, bindErr := bindValue(col, row.Values[col.Name])
		if bindErr != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, col.Name, bindErr)
		}
		names = append(names, col.Name)
		exprs = append(exprs, expr)
		args = append(args, colArgs...)
	}

	updates := make([]string, 0, len(names)-2)
	for _, name := range names[2:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", name, name))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)
		ON CONFLICT (tenant_id, source_id) DO UPDATE SET %s`,
		t.Name, strings.Join(names, ", "), strings.Join(exprs, ", "), strings.Join(updates, ", "))

	return withConflictRetry(ctx, func() error {
		if _, execErr := db.conn.ExecContext(ctx, query, args...); execErr != nil {
			return fmt.Errorf("failed to upsert into %s: %w", t.Name, execErr)
		}
		return nil
	})
}

func (t RawTable) hasColumn(name string) bool {
	for _, col := range t.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// PurgeRaw deletes every cached row of a tenant and returns the count.
func (db *DB) PurgeRaw(ctx context.Context, t RawTable, tenantID string) (n int64, err error) {
	start := time.Now()
	defer func() { observe("purge", t.Name, start, err) }()

	if err := db.EnsureRawTable(ctx, t); err != nil {
		return 0, err
	}
	res, err := db.conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE tenant_id = ?", t.Name), tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", t.Name, err)
	}
	return res.RowsAffected()
}

// CountRaw returns the number of cached rows of a tenant.
func (db *DB) CountRaw(ctx context.Context, t RawTable, tenantID string) (int64, error) {
	if err := db.EnsureRawTable(ctx, t); err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE tenant_id = ?", t.Name)
	if err := db.conn.QueryRowContext(ctx, query, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.Name, err)
	}
	return n, nil
}

// RawRows returns the mapped columns plus source_id and raw_payload of every
// cached row of a tenant, ordered by source_id. List columns scan as []any.
func (db *DB) RawRows(ctx context.Context, t RawTable, tenantID string) ([]map[string]any, error) {
	if err := db.EnsureRawTable(ctx, t); err != nil {
		return nil, err
	}

	names := []string{"source_id", "raw_payload", "modified_on"}
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = ? ORDER BY source_id",
		strings.Join(names, ", "), t.Name)

	rows, err := db.conn.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.Name, err)
		}
		rec := make(map[string]any, len(names))
		for i, name := range names {
			rec[name] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", t.Name, err)
	}
	return out, nil
}

// bindValue returns the SQL expression and arguments for one column value.
// A nil value binds NULL for every kind.
func bindValue(col Column, v any) (string, []any, error) {
	if v == nil {
		return "?", []any{nil}, nil
	}

	switch col.Kind {
	case KindScalar:
		s, err := scalarValue(v)
		return "?", []any{s}, err
	case KindTextArray:
		items, err := textArrayValue(v)
		if err != nil {
			return "", nil, err
		}
		return listExpr(len(items), "VARCHAR"), items, nil
	case KindIntArray:
		items, err := intArrayValue(v)
		if err != nil {
			return "", nil, err
		}
		return listExpr(len(items), "BIGINT"), items, nil
	case KindDocument:
		doc, err := documentValue(v)
		return "?", []any{doc}, err
	case KindTimestamp:
		ts, err := timestampValue(v)
		return "?", []any{ts}, err
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return "", nil, mismatch(col.Kind, v)
		}
		return "?", []any{b}, nil
	case KindInt:
		n, err := intValue(v)
		return "?", []any{n}, err
	case KindFloat:
		f, err := floatValue(v)
		return "?", []any{f}, err
	default:
		return "", nil, fmt.Errorf("unknown column kind %d", col.Kind)
	}
}

func listExpr(n int, elemType string) string {
	if n == 0 {
		return fmt.Sprintf("CAST([] AS %s[])", elemType)
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "CAST(? AS " + elemType + ")"
	}
	return "list_value(" + strings.Join(parts, ", ") + ")"
}

func mismatch(kind ColumnKind, v any) error {
	return fmt.Errorf("%w: %T cannot be stored in a %s column", ErrKindMismatch, v, kind)
}

func scalarValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return nil, mismatch(KindScalar, v)
	}
}

func textArrayValue(v any) ([]any, error) {
	switch x := v.(type) {
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, mismatch(KindTextArray, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, mismatch(KindTextArray, v)
	}
}

func intArrayValue(v any) ([]any, error) {
	switch x := v.(type) {
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := intValue(item)
			if err != nil {
				return nil, mismatch(KindIntArray, item)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, mismatch(KindIntArray, v)
	}
}

// documentValue accepts JSON text or decoded JSON objects and arrays.
// Native Go slices are array values and are rejected.
func documentValue(v any) (any, error) {
	switch x := v.(type) {
	case json.RawMessage:
		if !json.Valid(x) {
			return nil, fmt.Errorf("%w: invalid JSON document", ErrKindMismatch)
		}
		return string(x), nil
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}
		return string(data), nil
	default:
		return nil, mismatch(KindDocument, v)
	}
}

func timestampValue(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an RFC 3339 timestamp", ErrKindMismatch, x)
		}
		return t.UTC(), nil
	default:
		return nil, mismatch(KindTimestamp, v)
	}
}

func intValue(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrKindMismatch, x.String())
		}
		return n, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrKindMismatch, x)
		}
		// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
		if x >= 1<<63 || x < -(1<<63) {
			return 0, fmt.Errorf("%w: %v overflows int64", ErrKindMismatch, x)
		}
		return int64(x), nil
	default:
		return 0, mismatch(KindInt, v)
	}
}

func floatValue(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrKindMismatch, x.String())
		}
		return f, nil
	default:
		return 0, mismatch(KindFloat, v)
	}
}
