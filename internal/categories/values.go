// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package categories

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/source"
)

var jsonNull = json.RawMessage("null")

// normalizeValue validates a JSON override value for field and returns its
// canonical encoding.
func normalizeValue(field string, raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, source.NewValidationError("value", "value is required")
	}

	switch field {
	case models.FieldName:
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, source.NewValidationError("value", "name must be a string")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, source.NewValidationError("value", "name must not be empty")
		}
		if utf8.RuneCountInString(name) > MaxNameLength {
			return nil, source.NewValidationError("value", "name exceeds %d characters", MaxNameLength)
		}
		return json.Marshal(name)

	case models.FieldImageRef:
		var ref string
		if err := json.Unmarshal(raw, &ref); err != nil {
			return nil, source.NewValidationError("value", "imageRef must be a string")
		}
		return json.Marshal(strings.TrimSpace(ref))

	case models.FieldSortOrder:
		var order int64
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, source.NewValidationError("value", "sortOrder must be an integer")
		}
		if order < 0 {
			return nil, source.NewValidationError("value", "sortOrder must not be negative")
		}
		return json.Marshal(order)

	case models.FieldVisible:
		var visible bool
		if err := json.Unmarshal(raw, &visible); err != nil {
			return nil, source.NewValidationError("value", "visible must be a boolean")
		}
		return json.Marshal(visible)

	case models.FieldParentID:
		if bytes.Equal(raw, jsonNull) {
			return jsonNull, nil
		}
		var id json.Number
		if err := json.Unmarshal(raw, &id); err == nil {
			return encodeParent(id.String()), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, source.NewValidationError("value", "parentId must be a string, a number or null")
		}
		return encodeParent(strings.TrimSpace(s)), nil

	default:
		return nil, source.NewValidationError("field", "%q is not overridable", field)
	}
}

// applyValue folds a stored override into an effective node.
func applyValue(n *models.Category, field string, raw json.RawMessage) error {
	switch field {
	case models.FieldName:
		return json.Unmarshal(raw, &n.Name)
	case models.FieldImageRef:
		return json.Unmarshal(raw, &n.ImageRef)
	case models.FieldSortOrder:
		return json.Unmarshal(raw, &n.SortOrder)
	case models.FieldVisible:
		return json.Unmarshal(raw, &n.Visible)
	case models.FieldParentID:
		if id := decodeParent(raw); id != "" {
			n.ParentID = &id
		} else {
			n.ParentID = nil
		}
		return nil
	default:
		return fmt.Errorf("field %q is not overridable", field)
	}
}

func decodeParent(raw json.RawMessage) string {
	var id *string
	if err := json.Unmarshal(raw, &id); err != nil || id == nil {
		return ""
	}
	return *id
}

func encodeParent(id string) json.RawMessage {
	if id == "" {
		return jsonNull
	}
	data, _ := json.Marshal(id)
	return data
}
