// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/models"
)

type statsFunc func(ctx context.Context) (models.JobStats, error)

func (f statsFunc) Stats(ctx context.Context) (models.JobStats, error) { return f(ctx) }

// Not parallel: the queue depth gauge is process-wide.
func TestQueueMonitor_SamplesUntilCancelled(t *testing.T) {
	calls := make(chan struct{}, 16)
	m := newQueueMonitor(statsFunc(func(context.Context) (models.JobStats, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return models.JobStats{models.FamilyInbound: {models.JobStatusQueued: 3}}, nil
	}), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("monitor did not sample")
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}

	got := testutil.ToFloat64(metrics.JobQueueDepth.WithLabelValues(models.FamilyInbound, models.JobStatusQueued))
	if got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	if m.String() != "queue-monitor" {
		t.Errorf("String() = %q", m.String())
	}
}

func TestQueueMonitor_StatsErrorKeepsRunning(t *testing.T) {
	calls := 0
	m := newQueueMonitor(statsFunc(func(context.Context) (models.JobStats, error) {
		calls++
		return nil, errors.New("database closed")
	}), 0)

	m.sample(context.Background())
	m.sample(context.Background())
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if m.interval != DefaultQueueMonitorInterval {
		t.Errorf("interval = %v, want default", m.interval)
	}
}
