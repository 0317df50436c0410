// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package notify carries real-time sync and category events from the engine to
connected dashboard clients.

Events are published to a Watermill topic (default "fieldsync.events") with
the tenant id and event type in message metadata. Two backends exist:

  - gochannel (default): an in-process Watermill GoChannel pubsub.
  - nats: NATS JetStream through watermill-nats, optionally backed by an
    embedded nats-server. Requires building with -tags nats.

The Bridge is a Watermill router handler that subscribes to the topic and
hands every payload to a Broadcaster (the websocket hub), which fans it out
to the clients registered for the event's tenant.

Usage:

	bus, err := notify.New(cfg.Notify, cfg.NATS, notify.NewLogger())
	if err != nil {
	    return err
	}
	defer bus.Close()

	bridge, err := notify.NewBridge(bus, hub, notify.NewLogger())
	// supervise bridge (suture.Service)

	_ = bus.Publish(ctx, notify.Event{
	    Type:     notify.EventSyncStarted,
	    TenantID: "acme",
	    Data:     map[string]any{"entityType": "customers"},
	})

Publishing is best-effort from the engine's point of view: callers log
failures and carry on, the sync itself never fails because a notification
could not be delivered.
*/
package notify
