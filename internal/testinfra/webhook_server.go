// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// WebhookCapture represents a captured webhook request.
type WebhookCapture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// MockWebhookServer provides a mock HTTP server for testing webhook deliveries.
// It captures all incoming requests for verification.
type MockWebhookServer struct {
	Server   *httptest.Server
	captures []WebhookCapture
	mu       sync.Mutex

	// ResponseStatus is the HTTP status code to return (default: 200).
	ResponseStatus int
}

// NewMockWebhookServer creates a mock webhook server that is closed when
// the test ends.
func NewMockWebhookServer(t testing.TB) *MockWebhookServer {
	t.Helper()

	mws := &MockWebhookServer{ResponseStatus: http.StatusOK}
	mws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()

		mws.mu.Lock()
		mws.captures = append(mws.captures, WebhookCapture{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		status := mws.ResponseStatus
		mws.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(mws.Server.Close)
	return mws
}

// URL returns the server URL.
func (m *MockWebhookServer) URL() string {
	return m.Server.URL
}

// SetStatus changes the status code returned for later requests.
func (m *MockWebhookServer) SetStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseStatus = status
}

// Captures returns a copy of all captured requests.
func (m *MockWebhookServer) Captures() []WebhookCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]WebhookCapture, len(m.captures))
	copy(result, m.captures)
	return result
}

// WaitForCaptures waits until at least n requests are captured or timeout.
func (m *MockWebhookServer) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(m.Captures()) >= n {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
