// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordSourceRequest(t *testing.T) {
	before := testutil.ToFloat64(SourceRateLimited)
	beforeOK := testutil.ToFloat64(SourceRequestsTotal.WithLabelValues("GET", "200"))

	RecordSourceRequest("GET", 200, 10*time.Millisecond)
	RecordSourceRequest("GET", 429, 5*time.Millisecond)
	RecordSourceRequest("GET", 0, time.Second)

	if got := testutil.ToFloat64(SourceRequestsTotal.WithLabelValues("GET", "200")) - beforeOK; got != 1 {
		t.Errorf("200 counter delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SourceRateLimited) - before; got != 1 {
		t.Errorf("rate limited delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(SourceRequestsTotal.WithLabelValues("GET", "error")); got < 1 {
		t.Errorf("transport error counter = %v, want >= 1", got)
	}
}

func TestRecordJobRetryIncrementsRetries(t *testing.T) {
	before := testutil.ToFloat64(JobRetriesTotal.WithLabelValues("outbound"))
	RecordJob("outbound", "pushback", "retry", time.Millisecond)
	RecordJob("outbound", "pushback", "succeeded", time.Millisecond)
	if got := testutil.ToFloat64(JobRetriesTotal.WithLabelValues("outbound")) - before; got != 1 {
		t.Errorf("retries delta = %v, want 1", got)
	}
}

func TestUpdateQueueDepthResets(t *testing.T) {
	UpdateQueueDepth(map[string]map[string]int64{"inbound": {"queued": 3}, "image": {"failed": 1}})
	if got := testutil.ToFloat64(JobQueueDepth.WithLabelValues("inbound", "queued")); got != 3 {
		t.Errorf("inbound/queued = %v, want 3", got)
	}

	UpdateQueueDepth(map[string]map[string]int64{"inbound": {"queued": 0}})
	if n := testutil.CollectAndCount(JobQueueDepth); n != 1 {
		t.Errorf("series after reset = %d, want 1", n)
	}
}

func TestRecordSyncCounts(t *testing.T) {
	RecordSync("customers_test", "full", "completed", time.Second, 7, 2)
	if got := testutil.ToFloat64(SyncRecordsTotal.WithLabelValues("customers_test")); got != 7 {
		t.Errorf("records = %v, want 7", got)
	}
	if got := testutil.ToFloat64(SyncErrorsTotal.WithLabelValues("customers_test")); got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
}

func TestRecordSyncObservesHistogram(t *testing.T) {
	RecordSync("histo_entity", "incremental", "completed", 3*time.Second, 1, 0)

	m := &dto.Metric{}
	obs, err := SyncDuration.GetMetricWithLabelValues("histo_entity", "incremental", "completed")
	if err != nil {
		t.Fatal(err)
	}
	if err := obs.(prometheus.Histogram).Write(m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
	if got := m.GetHistogram().GetSampleSum(); got != 3 {
		t.Errorf("sample sum = %v, want 3", got)
	}
}

func TestResultLabels(t *testing.T) {
	t.Parallel()
	if resultLabel(nil) != "success" || resultLabel(errors.New("x")) != "error" {
		t.Error("resultLabel mapping is wrong")
	}
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range problems {
		// Non-fieldsync collectors come from the Go runtime and process collectors.
		if len(p.Metric) > len(namespace) && p.Metric[:len(namespace)] == namespace {
			t.Errorf("lint problem on %s: %s", p.Metric, p.Text)
		}
	}
}
