// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package notify

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Event types delivered to dashboard clients.
const (
	EventSyncStarted     = "sync:started"
	EventSyncProgress    = "sync:progress"
	EventSyncCompleted   = "sync:completed"
	EventSyncFailed      = "sync:failed"
	EventCategoryUpdated = "category:updated"
)

// Message metadata keys.
const (
	MetadataTenantID  = "tenant_id"
	MetadataEventType = "event_type"
)

// Event is the payload delivered over the websocket channel.
type Event struct {
	Type      string    `json:"type"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Publisher publishes events. Implemented by *Bus; tests use small fakes.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, event Event) error { return f(ctx, event) }

// DecodeEvent parses a payload produced by Bus.Publish.
func DecodeEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
