// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
)

// Options configures a Client.
type Options struct {
	Name         string // breaker and log name, e.g. "acme/production"
	BaseURL      string
	AuthURL      string
	SourceTenant string
	Credentials  Credentials

	Timeout           time.Duration
	MaxAttempts       int
	RetryBase         time.Duration
	RetryMaxDelay     time.Duration
	TokenRefreshSkew  time.Duration
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int

	BreakerEnabled bool
	Breaker        BreakerSettings

	Tokens     *TokenCache  // shared; required
	HTTPClient *http.Client // optional
}

// Client is a rate-limited, retrying client for one tenant and host pair.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	breaker *breaker
	tokens  *tokenSource

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// response is the outcome of one attempt.
type response struct {
	status int
	header http.Header
	body   []byte
	err    error // transport error or timeout
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" || opts.AuthURL == "" {
		return nil, errors.New("source client requires base and auth URLs")
	}
	if opts.Tokens == nil {
		return nil, errors.New("source client requires a token cache")
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.RetryMaxDelay < opts.RetryBase {
		opts.RetryMaxDelay = opts.RetryBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "source"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	burst := opts.Burst
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	c := &Client{
		opts:    opts,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		tokens:  newTokenSource(opts.AuthURL, opts.Credentials, httpClient, opts.Tokens, opts.TokenRefreshSkew),
		sleep:   sleepContext,
		now:     time.Now,
	}
	if opts.BreakerEnabled {
		c.breaker = newBreaker(opts.Name, opts.Breaker)
	}
	return c, nil
}

// TenantPath returns /{domain}/v2/tenant/{tenant}/{resource}.
func (c *Client) TenantPath(domain, resource string) string {
	return fmt.Sprintf("/%s/v2/tenant/%s/%s", domain, url.PathEscape(c.opts.SourceTenant), strings.TrimLeft(resource, "/"))
}

// BreakerState returns closed, half-open, open, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.state()
}

// Name returns the client name.
func (c *Client) Name() string { return c.opts.Name }

// Request performs an authenticated call and returns the status and body of
// the final successful attempt. body is JSON-encoded when not nil.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	target := c.opts.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	op := method + " " + path

	reauthed := false
	var lastRetryAfter time.Duration
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to obtain access token: %w", err)
		}

		resp, err := c.attempt(ctx, method, target, token, payload)
		if err != nil {
			// Open circuit: fail fast.
			return 0, nil, &TransientSourceError{Op: op, Err: err}
		}

		var delay time.Duration
		reason := ""
		switch {
		case resp.err != nil:
			reason = "transport"
			if isTimeout(resp.err) {
				reason = "timeout"
			}
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			if attempt == c.opts.MaxAttempts {
				return 0, nil, &TransientSourceError{Op: op, Err: resp.err}
			}

		case resp.status == http.StatusUnauthorized:
			c.tokens.Invalidate()
			if reauthed {
				return resp.status, resp.body, &PermanentSourceError{Op: op, StatusCode: resp.status, Body: truncate(string(resp.body), 256)}
			}
			reauthed = true
			metrics.RecordSourceRetry("unauthorized")
			attempt-- // a token refresh does not consume an attempt
			continue

		case resp.status == http.StatusTooManyRequests:
			reason = "rate_limit"
			lastRetryAfter = parseRetryAfter(resp.header.Get("Retry-After"), c.now())
			// A hint longer than any in-process wait goes back to the job queue.
			if attempt == c.opts.MaxAttempts || lastRetryAfter > c.opts.RetryMaxDelay {
				return resp.status, resp.body, &RateLimitError{Op: op, Attempts: attempt, RetryAfter: lastRetryAfter}
			}
			delay = lastRetryAfter

		case resp.status >= 500:
			reason = "server_error"
			if attempt == c.opts.MaxAttempts {
				return resp.status, resp.body, &TransientSourceError{Op: op, StatusCode: resp.status}
			}
			delay = min(parseRetryAfter(resp.header.Get("Retry-After"), c.now()), c.opts.RetryMaxDelay)

		case resp.status >= 400:
			return resp.status, resp.body, classifyClientError(op, resp.status, resp.body)

		default:
			return resp.status, resp.body, nil
		}

		if delay <= 0 {
			delay = c.backoff(attempt)
		}
		metrics.RecordSourceRetry(reason)
		logging.Warn().Str("client", c.opts.Name).Str("op", op).Str("reason", reason).
			Dur("retry_delay", delay).Int("attempt", attempt).Int("max_attempts", c.opts.MaxAttempts).
			Msg("source request failed, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return 0, nil, err
		}
	}

	// Only reachable when MaxAttempts loops end on a 401 refresh.
	return 0, nil, &TransientSourceError{Op: op, Err: errors.New("retry budget exhausted")}
}

// attempt performs one HTTP round trip under the breaker.
func (c *Client) attempt(ctx context.Context, method, target, token string, payload []byte) (*response, error) {
	run := func() (*response, error) {
		resp := c.roundTrip(ctx, method, target, token, payload)
		if resp.err != nil || resp.status >= 500 {
			return resp, errAttemptUnavailable
		}
		return resp, nil
	}
	if c.breaker == nil {
		resp, _ := run()
		return resp, nil
	}
	resp, err := c.breaker.execute(run)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("circuit %s: %w", c.opts.Name, err)
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, target, token string, payload []byte) *response {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, bodyReader)
	if err != nil {
		return &response{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.opts.Credentials.AppKey != "" {
		req.Header.Set("ST-App-Key", c.opts.Credentials.AppKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordSourceRequest(method, 0, time.Since(start))
		return &response{err: err}
	}
	defer closeQuietly(resp.Body)

	data, err := io.ReadAll(resp.Body)
	metrics.RecordSourceRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return &response{err: fmt.Errorf("read response body: %w", err)}
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}
}

// backoff returns RetryBase * 2^(attempt-1), capped at RetryMaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.opts.RetryMaxDelay {
			return c.opts.RetryMaxDelay
		}
	}
	return d
}

// classifyClientError maps a non-429 4xx to ConflictError or PermanentSourceError.
func classifyClientError(op string, status int, body []byte) error {
	text := truncate(string(body), 512)
	switch status {
	case http.StatusConflict, http.StatusPreconditionFailed:
		return &ConflictError{Op: op, StatusCode: status, Body: text}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if looksLikeConflict(body) {
			return &ConflictError{Op: op, StatusCode: status, Body: text}
		}
	}
	return &PermanentSourceError{Op: op, StatusCode: status, Body: text}
}

// looksLikeConflict checks the error code of a 400/422 body.
func looksLikeConflict(body []byte) bool {
	var payload struct {
		Code  string `json:"code"`
		Title string `json:"title"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	for _, s := range []string{payload.Code, payload.Title, payload.Type} {
		for _, marker := range []string{"conflict", "stale", "version"} {
			if strings.Contains(strings.ToLower(s), marker) {
				return true
			}
		}
	}
	return false
}

// parseRetryAfter accepts delay-seconds or an HTTP-date. It returns 0 when absent or invalid.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
