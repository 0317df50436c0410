// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/source"
)

// DefaultWebhookTimeout bounds one webhook POST.
const DefaultWebhookTimeout = 10 * time.Second

// Webhook POSTs events to tenant-configured URLs.
type Webhook struct {
	client *http.Client
}

// NewWebhook creates a sender with the given request timeout.
func NewWebhook(timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &Webhook{client: &http.Client{Timeout: timeout}}
}

// Send delivers event to url. 5xx responses, 429 and transport errors are
// transient; any other non-2xx status is permanent.
func (w *Webhook) Send(ctx context.Context, url string, event Event) (err error) {
	defer func() { metrics.RecordWebhookDelivery(err) }()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return source.NewValidationError("webhookUrl", "invalid webhook url: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Fieldsync-Webhook/1.0")
	req.Header.Set("X-Fieldsync-Event", event.Type)

	resp, err := w.client.Do(req)
	if err != nil {
		return &source.TransientSourceError{Op: "POST webhook", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &source.TransientSourceError{Op: "POST webhook", StatusCode: resp.StatusCode}
	}
	return &source.PermanentSourceError{Op: "POST webhook", StatusCode: resp.StatusCode, Body: string(detail)}
}
