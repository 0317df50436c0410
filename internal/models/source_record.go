// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// SourceRecord is one record fetched from the source API.
type SourceRecord struct {
	SourceID   string          `json:"sourceId"`
	TenantID   string          `json:"tenantId"`
	Fields     map[string]any  `json:"fields"`
	RawPayload json.RawMessage `json:"rawPayload"`
	ModifiedOn *time.Time      `json:"modifiedOn,omitempty"`
}

// String returns the named field as a string, or "" when absent.
func (r SourceRecord) String(name string) string {
	switch v := r.Fields[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the named field as a bool, or def when absent or not a bool.
func (r SourceRecord) Bool(name string, def bool) bool {
	if v, ok := r.Fields[name].(bool); ok {
		return v
	}
	return def
}

// Int returns the named field as an int64, or 0 when absent.
func (r SourceRecord) Int(name string) int64 {
	switch v := r.Fields[name].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
