// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

//go:build !nats

package notify

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/fieldsync/internal/config"
)

// ErrNATSUnavailable is returned when the nats backend is selected in a
// binary built without -tags nats.
var ErrNATSUnavailable = errors.New("nats notify backend not available: build with -tags nats")

func newNATSBus(string, config.NATSConfig, watermill.LoggerAdapter) (*Bus, error) {
	return nil, ErrNATSUnavailable
}
