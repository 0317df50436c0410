// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package engine

import (
	"context"
	"time"

	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/models"
)

// DefaultQueueMonitorInterval is how often queue depth gauges are refreshed.
const DefaultQueueMonitorInterval = 15 * time.Second

type statser interface {
	Stats(ctx context.Context) (models.JobStats, error)
}

// queueMonitor samples job counts per family and status into the queue
// depth gauges. It implements suture.Service.
type queueMonitor struct {
	queue    statser
	interval time.Duration
}

func newQueueMonitor(queue statser, interval time.Duration) *queueMonitor {
	if interval <= 0 {
		interval = DefaultQueueMonitorInterval
	}
	return &queueMonitor{queue: queue, interval: interval}
}

func (m *queueMonitor) String() string { return "queue-monitor" }

func (m *queueMonitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *queueMonitor) sample(ctx context.Context) {
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger := logging.WithComponent("queue-monitor")
			logger.Warn().Err(err).Msg("queue stats failed")
		}
		return
	}
	metrics.UpdateQueueDepth(stats)
}
