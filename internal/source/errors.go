// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds returned by Kind.
const (
	KindTransient  = "transient"
	KindRateLimit  = "rate_limit"
	KindPermanent  = "permanent"
	KindConflict   = "conflict"
	KindValidation = "validation"
	KindUnknown    = "unknown"
)

// TransientSourceError means the source is unavailable: 5xx, timeouts,
// transport errors or an open circuit.
type TransientSourceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientSourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("source unavailable: %s: HTTP %d", e.Op, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("source unavailable: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("source unavailable: %s", e.Op)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

// RateLimitError means the source kept answering 429 until attempts ran out.
type RateLimitError struct {
	Op         string
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("source rate limit exceeded: %s: after %d attempts (retry after %s)", e.Op, e.Attempts, e.RetryAfter)
}

// PermanentSourceError is a 4xx rejection that retrying cannot fix.
type PermanentSourceError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *PermanentSourceError) Error() string {
	return fmt.Sprintf("source rejected request: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// ConflictError is a write rejected because the remote version moved.
type ConflictError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("source conflict: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// ValidationError is a request rejected locally.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is worth retrying later.
func IsRetryable(err error) bool {
	switch Kind(err) {
	case KindTransient, KindRateLimit:
		return true
	}
	return false
}

// IsTerminal reports whether err should fail a job immediately.
func IsTerminal(err error) bool {
	switch Kind(err) {
	case KindPermanent, KindValidation:
		return true
	}
	return false
}

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		transient  *TransientSourceError
		rateLimit  *RateLimitError
		permanent  *PermanentSourceError
		conflict   *ConflictError
		validation *ValidationError
	)
	switch {
	case errors.As(err, &rateLimit):
		return KindRateLimit
	case errors.As(err, &transient):
		return KindTransient
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &permanent):
		return KindPermanent
	case errors.As(err, &validation):
		return KindValidation
	}
	return KindUnknown
}

// RetryAfter returns the server-requested delay carried by a RateLimitError.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}
