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
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

const bridgeHandlerName = "websocket-bridge"

// Broadcaster delivers a serialized event to every client of a tenant.
type Broadcaster interface {
	BroadcastToTenant(tenantID string, payload []byte)
}

// Bridge forwards bus events to a Broadcaster. It implements
// suture.Service; every Serve call runs a fresh Watermill router so the
// supervisor can restart it.
type Bridge struct {
	subscriber   message.Subscriber
	topic        string
	target       Broadcaster
	logger       watermill.LoggerAdapter
	closeTimeout time.Duration

	runningOnce sync.Once
	running     chan struct{}
}

// NewBridge creates a bridge reading from the bus topic.
func NewBridge(bus *Bus, target Broadcaster, logger watermill.LoggerAdapter) (*Bridge, error) {
	if bus == nil {
		return nil, errors.New("bus is required")
	}
	if target == nil {
		return nil, errors.New("broadcaster is required")
	}
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	return &Bridge{
		subscriber:   nopCloseSubscriber{bus.Subscriber()},
		topic:        bus.Topic(),
		target:       target,
		logger:       logger,
		closeTimeout: 10 * time.Second,
		running:      make(chan struct{}),
	}, nil
}

// Serve runs the router until ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: b.closeTimeout}, b.logger)
	if err != nil {
		return fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddConsumerHandler(bridgeHandlerName, b.topic, b.subscriber, b.handle)

	go func() {
		select {
		case <-router.Running():
			b.runningOnce.Do(func() { close(b.running) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("bridge router: %w", err)
	}
	return ctx.Err()
}

// Running is closed once the first router is subscribed.
func (b *Bridge) Running() <-chan struct{} {
	return b.running
}

// String implements fmt.Stringer for suture logging.
func (b *Bridge) String() string {
	return "notify-bridge"
}

func (b *Bridge) handle(msg *message.Message) error {
	tenantID := msg.Metadata.Get(MetadataTenantID)
	if tenantID == "" {
		event, err := DecodeEvent(msg.Payload)
		if err != nil {
			// Malformed payloads are acked and dropped.
			b.logger.Error("Dropping malformed event", err, watermill.LogFields{"message_uuid": msg.UUID})
			return nil
		}
		tenantID = event.TenantID
	}
	b.target.BroadcastToTenant(tenantID, msg.Payload)
	return nil
}

// nopCloseSubscriber keeps the router from closing the bus subscriber when
// it shuts down. The bus owns the subscriber.
type nopCloseSubscriber struct {
	message.Subscriber
}

func (nopCloseSubscriber) Close() error { return nil }
