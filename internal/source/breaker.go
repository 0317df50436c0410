// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
)

// BreakerSettings tunes the circuit breaker. Zero values use the defaults.
type BreakerSettings struct {
	MaxRequests  uint32        // requests allowed in half-open state (default 3)
	Interval     time.Duration // closed-state count reset window (default 1m)
	Timeout      time.Duration // open to half-open delay (default 2m)
	MinRequests  uint32        // minimum requests before tripping (default 10)
	FailureRatio float64       // trip ratio (default 0.6)
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 3
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = 2 * time.Minute
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
	return s
}

// breaker guards source attempts. Only transient outcomes count as failures:
// a 4xx means the source is healthy and answering.
type breaker struct {
	cb   *gobreaker.CircuitBreaker[*response]
	name string
}

func newBreaker(name string, s BreakerSettings) *breaker {
	s = s.withDefaults()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= s.FailureRatio
			if shouldTrip {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).Msg("opening circuit")
			}
			return shouldTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, errAttemptUnavailable)
		},
	})
	return &breaker{cb: cb, name: name}
}

// errAttemptUnavailable marks an attempt outcome that counts against the circuit.
var errAttemptUnavailable = errors.New("attempt unavailable")

// execute runs fn under the breaker. fn reports an unhealthy attempt by
// returning an error wrapping errAttemptUnavailable alongside its response.
func (b *breaker) execute(fn func() (*response, error)) (*response, error) {
	var out *response
	_, err := b.cb.Execute(func() (*response, error) {
		resp, err := fn()
		out = resp
		return resp, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, err
	}
	if errors.Is(err, errAttemptUnavailable) {
		// Hand the response back to the retry loop.
		return out, nil
	}
	return out, err
}

func (b *breaker) state() string {
	return stateToString(b.cb.State())
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
