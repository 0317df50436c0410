// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err       error
		kind      string
		retryable bool
		terminal  bool
	}{
		{nil, "", false, false},
		{&TransientSourceError{Op: "GET /x", StatusCode: 503}, KindTransient, true, false},
		{&RateLimitError{Op: "GET /x", Attempts: 5}, KindRateLimit, true, false},
		{&PermanentSourceError{Op: "GET /x", StatusCode: 404}, KindPermanent, false, true},
		{&ConflictError{Op: "PATCH /x", StatusCode: 409}, KindConflict, false, false},
		{NewValidationError("field", "bad %s", "value"), KindValidation, false, true},
		{fmt.Errorf("wrapped: %w", &RateLimitError{}), KindRateLimit, true, false},
		{errors.New("plain"), KindUnknown, false, false},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.kind {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.kind)
		}
		if got := IsRetryable(tt.err); got != tt.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
		}
		if got := IsTerminal(tt.err); got != tt.terminal {
			t.Errorf("IsTerminal(%v) = %v, want %v", tt.err, got, tt.terminal)
		}
	}
}

func TestRetryAfterHelper(t *testing.T) {
	t.Parallel()
	if d, ok := RetryAfter(fmt.Errorf("x: %w", &RateLimitError{RetryAfter: 3 * time.Second})); !ok || d != 3*time.Second {
		t.Errorf("RetryAfter = %v, %v", d, ok)
	}
	if _, ok := RetryAfter(&TransientSourceError{}); ok {
		t.Error("TransientSourceError carries no RetryAfter")
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()
	if got := (&TransientSourceError{Op: "GET /x", StatusCode: 502}).Error(); got != "source unavailable: GET /x: HTTP 502" {
		t.Errorf("TransientSourceError.Error() = %q", got)
	}
	if got := NewValidationError("", "nope").Error(); got != "validation failed: nope" {
		t.Errorf("ValidationError.Error() = %q", got)
	}
}
