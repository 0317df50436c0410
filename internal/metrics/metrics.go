// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldsync"

var (
	// Source API metrics
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of source API requests by method and status code",
		},
		[]string{"method", "status"},
	)

	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of individual source API attempts",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	SourceRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_retries_total",
			Help:      "Total number of source API retries by reason",
		},
		[]string{"reason"}, // "rate_limit", "server_error", "timeout", "transport", "unauthorized"
	)

	SourceRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of 429 responses from the source API",
		},
	)

	SourceTokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_token_refreshes_total",
			Help:      "Total number of OAuth token requests by result",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Sync metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"entity_type", "sync_type", "status"},
	)

	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Total number of records upserted by inbound sync",
		},
		[]string{"entity_type"},
	)

	SyncErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Total number of per-record or run-level sync errors",
		},
		[]string{"entity_type"},
	)

	// Job metrics
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of job executions by family, type and result",
		},
		[]string{"family", "type", "result"}, // result: "succeeded", "retry", "failed", "skipped"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of job handler executions",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"family"},
	)

	JobRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Total number of jobs rescheduled after a failure",
		},
		[]string{"family"},
	)

	JobPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_panics_total",
			Help:      "Total number of recovered panics in job handlers",
		},
		[]string{"family"},
	)

	JobQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Number of jobs by family and status",
		},
		[]string{"family", "status"},
	)

	// Push-back metrics
	PushbackItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushback_items_total",
			Help:      "Total number of entities pushed back to the source by result",
		},
		[]string{"entity_type", "result"}, // "updated", "failed"
	)

	// HTTP API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of admin API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request latency",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of admin API requests being served",
		},
	)

	// Real-time metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Number of connected websocket clients",
		},
	)

	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_total",
			Help:      "Total number of websocket deliveries by result",
		},
		[]string{"result"}, // "sent", "dropped"
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of notifier events published",
		},
		[]string{"type", "result"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of tenant webhook deliveries by result",
		},
		[]string{"result"},
	)

	// Storage metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Duration of DuckDB statements",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_query_errors_total",
			Help:      "Total number of failed DuckDB statements",
		},
		[]string{"operation", "table"},
	)

	AssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_total",
			Help:      "Total number of image downloads by result",
		},
		[]string{"result"}, // "stored", "skipped", "failed"
	)

	ScheduleFiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_fires_total",
			Help:      "Total number of scheduled job enqueues by schedule and result",
		},
		[]string{"schedule", "result"}, // "enqueued", "deduplicated", "error"
	)
)

// RecordSourceRequest records one source API attempt.
func RecordSourceRequest(method string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	SourceRequestsTotal.WithLabelValues(method, label).Inc()
	SourceRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
	if status == 429 {
		SourceRateLimited.Inc()
	}
}

// RecordSourceRetry records a retry decision.
func RecordSourceRetry(reason string) {
	SourceRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordTokenRefresh records an OAuth token request.
func RecordTokenRefresh(err error) {
	SourceTokenRefreshes.WithLabelValues(resultLabel(err)).Inc()
}

// RecordSync records a finished sync run.
func RecordSync(entityType, syncType, status string, duration time.Duration, records, errors int64) {
	SyncDuration.WithLabelValues(entityType, syncType, status).Observe(duration.Seconds())
	if records > 0 {
		SyncRecordsTotal.WithLabelValues(entityType).Add(float64(records))
	}
	if errors > 0 {
		SyncErrorsTotal.WithLabelValues(entityType).Add(float64(errors))
	}
}

// RecordJob records one job execution.
func RecordJob(family, jobType, result string, duration time.Duration) {
	JobsProcessedTotal.WithLabelValues(family, jobType, result).Inc()
	JobDuration.WithLabelValues(family).Observe(duration.Seconds())
	if result == "retry" {
		JobRetriesTotal.WithLabelValues(family).Inc()
	}
}

// RecordJobPanic records a recovered handler panic.
func RecordJobPanic(family string) {
	JobPanicsTotal.WithLabelValues(family).Inc()
}

// UpdateQueueDepth replaces the queue depth gauges from a stats snapshot.
func UpdateQueueDepth(stats map[string]map[string]int64) {
	JobQueueDepth.Reset()
	for family, byStatus := range stats {
		for status, n := range byStatus {
			JobQueueDepth.WithLabelValues(family, status).Set(float64(n))
		}
	}
}

// RecordPushback records the outcome of a push-back run.
func RecordPushback(entityType string, updated, failed int) {
	if updated > 0 {
		PushbackItemsTotal.WithLabelValues(entityType, "updated").Add(float64(updated))
	}
	if failed > 0 {
		PushbackItemsTotal.WithLabelValues(entityType, "failed").Add(float64(failed))
	}
}

// RecordAPIRequest records one admin API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordEventPublished records a notifier publish.
func RecordEventPublished(eventType string, err error) {
	EventsPublishedTotal.WithLabelValues(eventType, resultLabel(err)).Inc()
}

// RecordWebhookDelivery records a tenant webhook POST.
func RecordWebhookDelivery(err error) {
	WebhookDeliveriesTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordDBQuery records one database statement.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAsset records an image download outcome.
func RecordAsset(result string) {
	AssetsTotal.WithLabelValues(result).Inc()
}

// RecordScheduleFire records one scheduled enqueue attempt.
func RecordScheduleFire(schedule, result string) {
	ScheduleFiresTotal.WithLabelValues(schedule, result).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
