// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testAPI is a fake source API with a token endpoint and one data handler.
type testAPI struct {
	server     *httptest.Server
	tokenCalls atomic.Int32
	apiCalls   atomic.Int32
	tokens     []string
	mu         sync.Mutex

	handle func(w http.ResponseWriter, r *http.Request, call int32)
}

func newTestAPI(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, call int32)) *testAPI {
	t.Helper()
	api := &testAPI{handle: handle}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/connect/token" {
			n := api.tokenCalls.Add(1)
			if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
				http.Error(w, "bad grant", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-` + string(rune('0'+n)) + `","expires_in":900}`))
			return
		}
		api.mu.Lock()
		api.tokens = append(api.tokens, r.Header.Get("Authorization"))
		api.mu.Unlock()
		api.handle(w, r, api.apiCalls.Add(1))
	}))
	t.Cleanup(api.server.Close)
	return api
}

func (a *testAPI) authHeaders() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tokens...)
}

func newTestClient(t *testing.T, api *testAPI, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		Name:          t.Name(),
		BaseURL:       api.server.URL,
		AuthURL:       api.server.URL,
		SourceTenant:  "123",
		Credentials:   Credentials{ClientID: "cid", ClientSecret: "secret", AppKey: "app"},
		Timeout:       2 * time.Second,
		MaxAttempts:   3,
		RetryBase:     10 * time.Millisecond,
		RetryMaxDelay: 40 * time.Millisecond,
		Tokens:        NewTokenCache(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

// recordSleeps replaces the client's sleeper with one that records delays.
func recordSleeps(c *Client) *[]time.Duration {
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &delays
}

func TestRequestSuccessSendsHeaders(t *testing.T) {
	t.Parallel()
	var (
		mu                 sync.Mutex
		gotAppKey, gotPath string
	)
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		mu.Lock()
		gotAppKey = r.Header.Get("ST-App-Key")
		gotPath = r.URL.Path
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	c := newTestClient(t, api, nil)

	status, body, err := c.Request(context.Background(), http.MethodGet, c.TenantPath("crm", "customers"), nil, nil)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if status != http.StatusOK || string(body) != `{"ok":true}` {
		t.Errorf("Request() = %d %s", status, body)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAppKey != "app" {
		t.Errorf("ST-App-Key = %q, want app", gotAppKey)
	}
	if gotPath != "/crm/v2/tenant/123/customers" {
		t.Errorf("path = %q", gotPath)
	}
	if got := api.authHeaders(); len(got) != 1 || got[0] != "Bearer tok-1" {
		t.Errorf("Authorization = %v, want [Bearer tok-1]", got)
	}
}

func TestRequestHonorsRetryAfterSeconds(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, call int32) {
		if call == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, api, func(o *Options) { o.RetryMaxDelay = 5 * time.Second })

	start := time.Now()
	if _, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("elapsed = %v, want at least 2s", elapsed)
	}
	if got := api.apiCalls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
}

func TestRequestRateLimitErrorOnlyAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, api, func(o *Options) {
		o.MaxAttempts = 4
		o.RetryMaxDelay = 10 * time.Second
	})
	delays := recordSleeps(c)

	_, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rl.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", rl.Attempts)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}
	if got := api.apiCalls.Load(); got != 4 {
		t.Errorf("api calls = %d, want 4", got)
	}
	if len(*delays) != 3 {
		t.Fatalf("sleeps = %v, want 3", *delays)
	}
	for _, d := range *delays {
		if d != 7*time.Second {
			t.Errorf("sleep = %v, want Retry-After 7s", d)
		}
	}
	if !IsRetryable(err) {
		t.Error("RateLimitError should be retryable")
	}
}

func TestRequestLongRetryAfterReturnsImmediately(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, api, nil)
	delays := recordSleeps(c)

	_, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rl.RetryAfter != time.Hour || rl.Attempts != 1 {
		t.Errorf("RateLimitError = %+v, want RetryAfter 1h after 1 attempt", rl)
	}
	if got := api.apiCalls.Load(); got != 1 {
		t.Errorf("api calls = %d, want 1", got)
	}
	if len(*delays) != 0 {
		t.Errorf("sleeps = %v, want none", *delays)
	}
}

func TestRequestServerErrorRetryAfterIsCapped(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, call int32) {
		if call == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, api, nil)
	delays := recordSleeps(c)

	if _, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != 40*time.Millisecond {
		t.Errorf("sleeps = %v, want one capped at 40ms", *delays)
	}
}

func TestRequestRecoversBeforeMaxAttempts(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, call int32) {
		if call < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, api, func(o *Options) { o.MaxAttempts = 3 })
	delays := recordSleeps(c)

	if _, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Request() error = %v, want success on third attempt", err)
	}
	// No Retry-After: exponential backoff from RetryBase.
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestRequestClientErrorsAreNotRetried(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
	}{
		{"bad request", http.StatusBadRequest, `{"code":"InvalidField"}`, KindPermanent},
		{"not found", http.StatusNotFound, `{}`, KindPermanent},
		{"conflict", http.StatusConflict, `{}`, KindConflict},
		{"precondition", http.StatusPreconditionFailed, ``, KindConflict},
		{"stale version body", http.StatusUnprocessableEntity, `{"code":"StaleVersion"}`, KindConflict},
		{"version title", http.StatusBadRequest, `{"title":"Version mismatch"}`, KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c := newTestClient(t, api, nil)

			status, _, err := c.Request(context.Background(), http.MethodPatch, "/x", nil, map[string]string{"name": "n"})
			if got := Kind(err); got != tt.wantKind {
				t.Errorf("Kind(err) = %q, want %q (err = %v)", got, tt.wantKind, err)
			}
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if got := api.apiCalls.Load(); got != 1 {
				t.Errorf("api calls = %d, want 1 (no retry)", got)
			}
		})
	}
}

func TestRequestServerErrorsExhaustToTransient(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, api, nil)
	delays := recordSleeps(c)

	_, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	var te *TransientSourceError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransientSourceError", err)
	}
	if te.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", te.StatusCode)
	}
	// 10ms, 20ms; the cap (40ms) is not reached in 3 attempts.
	if len(*delays) != 2 {
		t.Errorf("sleeps = %v, want 2", *delays)
	}
}

func TestRequestTimeoutIsRetryable(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request, call int32) {
		if call == 1 {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, api, func(o *Options) { o.Timeout = 50 * time.Millisecond })
	recordSleeps(c)

	if _, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Request() error = %v, want success after timeout retry", err)
	}
	if got := api.apiCalls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
}

func TestRequestUnauthorizedRefreshesTokenOnce(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, api, func(o *Options) { o.MaxAttempts = 1 })

	if _, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if got := api.tokenCalls.Load(); got != 2 {
		t.Errorf("token calls = %d, want 2", got)
	}
}

func TestRequestRepeatedUnauthorizedIsPermanent(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, api, nil)

	_, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	if Kind(err) != KindPermanent {
		t.Fatalf("Kind(err) = %q, want permanent (err = %v)", Kind(err), err)
	}
	if got := api.apiCalls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2", got)
	}
}

func TestTokenCacheSharedAcrossClients(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		_, _ = w.Write([]byte(`{}`))
	})
	shared := NewTokenCache()
	c1 := newTestClient(t, api, func(o *Options) { o.Tokens = shared })
	c2 := newTestClient(t, api, func(o *Options) { o.Tokens = shared })

	var wg sync.WaitGroup
	for _, c := range []*Client{c1, c2, c1, c2} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if _, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
				t.Errorf("Request() error = %v", err)
			}
		}(c)
	}
	wg.Wait()

	if got := api.tokenCalls.Load(); got != 1 {
		t.Errorf("token calls = %d, want 1", got)
	}
}

func TestCircuitOpensOnServerErrors(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, api, func(o *Options) {
		o.MaxAttempts = 1
		o.BreakerEnabled = true
		o.Breaker = BreakerSettings{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Hour}
	})

	for i := 0; i < 2; i++ {
		_, _, _ = c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	}
	if got := c.BreakerState(); got != "open" {
		t.Fatalf("BreakerState() = %q, want open", got)
	}

	_, _, err := c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	if Kind(err) != KindTransient {
		t.Errorf("open circuit Kind = %q, want transient", Kind(err))
	}
	if got := api.apiCalls.Load(); got != 2 {
		t.Errorf("api calls = %d, want 2 (third rejected by breaker)", got)
	}
}

func TestCircuitIgnoresClientErrors(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, api, func(o *Options) {
		o.BreakerEnabled = true
		o.Breaker = BreakerSettings{MinRequests: 2, FailureRatio: 0.5}
	})
	for i := 0; i < 5; i++ {
		_, _, _ = c.Request(context.Background(), http.MethodGet, "/x", nil, nil)
	}
	if got := c.BreakerState(); got != "closed" {
		t.Errorf("BreakerState() = %q, want closed", got)
	}
}

func TestBackoffCapped(t *testing.T) {
	t.Parallel()
	c := &Client{opts: Options{RetryBase: time.Second, RetryMaxDelay: 5 * time.Second}}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := c.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{" 30 ", 30 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewClientRequiresTokenCache(t *testing.T) {
	t.Parallel()
	if _, err := NewClient(Options{BaseURL: "http://a", AuthURL: "http://b"}); err == nil {
		t.Error("NewClient without token cache should fail")
	}
}
