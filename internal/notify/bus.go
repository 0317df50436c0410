// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "fieldsync.events"

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("notify bus is closed")

// Bus publishes events to a Watermill topic and exposes the matching
// subscriber for the Bridge.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	backend    string
	logger     watermill.LoggerAdapter
	now        func() time.Time

	closers []func() error
	mu      sync.RWMutex
	closed  bool
}

// NewLogger returns a Watermill logger that writes through the service logger.
func NewLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger())
}

// New builds the bus for the configured backend.
func New(notifyCfg config.NotifyConfig, natsCfg config.NATSConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	topic := notifyCfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	switch notifyCfg.Backend {
	case config.NotifyBackendNATS:
		return newNATSBus(topic, natsCfg, logger)
	case config.NotifyBackendChannel, "":
		return NewChannelBus(topic, logger), nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", notifyCfg.Backend)
	}
}

// NewChannelBus creates an in-process bus backed by Watermill's GoChannel.
// Messages published while no subscriber is attached are dropped.
func NewChannelBus(topic string, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)

	b := newBus(pubSub, pubSub, topic, config.NotifyBackendChannel, logger)
	b.closers = []func() error{pubSub.Close}
	return b
}

func newBus(pub message.Publisher, sub message.Subscriber, topic, backend string, logger watermill.LoggerAdapter) *Bus {
	return &Bus{
		publisher:  pub,
		subscriber: sub,
		topic:      topic,
		backend:    backend,
		logger:     logger,
		now:        time.Now,
	}
}

// Publish serializes the event and publishes it on the bus topic.
// A zero Timestamp is set to the current time.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.RecordEventPublished(event.Type, err)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataTenantID, event.TenantID)
	msg.Metadata.Set(MetadataEventType, event.Type)
	msg.SetContext(ctx)

	err = b.publisher.Publish(b.topic, msg)
	metrics.RecordEventPublished(event.Type, err)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Subscriber returns the subscriber side of the bus.
func (b *Bus) Subscriber() message.Subscriber {
	return b.subscriber
}

// Topic returns the topic events are published on.
func (b *Bus) Topic() string {
	return b.topic
}

// Backend returns the backend name (gochannel or nats).
func (b *Bus) Backend() string {
	return b.backend
}

// Close releases the publisher, the subscriber and any embedded server.
// Close is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
