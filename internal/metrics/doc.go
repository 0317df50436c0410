// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package metrics defines the Prometheus collectors exported at /metrics.

All collectors are registered with the default registry through promauto and
are updated through the Record* helpers so label sets stay consistent.

# Available Metrics

Source API:
  - fieldsync_source_requests_total{method,status}
  - fieldsync_source_request_duration_seconds{method}
  - fieldsync_source_retries_total{reason}
  - fieldsync_source_rate_limited_total
  - fieldsync_source_token_refreshes_total{result}
  - fieldsync_circuit_breaker_state{name} (0 closed, 1 half-open, 2 open)
  - fieldsync_circuit_breaker_transitions_total{name,from,to}

Sync:
  - fieldsync_sync_duration_seconds{entity_type,sync_type,status}
  - fieldsync_sync_records_total{entity_type}
  - fieldsync_sync_errors_total{entity_type}

Jobs:
  - fieldsync_jobs_processed_total{family,type,result}
  - fieldsync_job_duration_seconds{family}
  - fieldsync_job_retries_total{family}
  - fieldsync_job_panics_total{family}
  - fieldsync_job_queue_depth{family,status}

Push-back:
  - fieldsync_pushback_items_total{entity_type,result}

API and real-time:
  - fieldsync_http_requests_total{method,endpoint,status}
  - fieldsync_http_request_duration_seconds{method,endpoint}
  - fieldsync_http_requests_in_flight
  - fieldsync_websocket_connections
  - fieldsync_websocket_messages_total{result}
  - fieldsync_events_published_total{type,result}
  - fieldsync_webhook_deliveries_total{result}

Storage:
  - fieldsync_db_query_duration_seconds{operation,table}
  - fieldsync_db_query_errors_total{operation,table}
  - fieldsync_assets_total{result}
*/
package metrics
