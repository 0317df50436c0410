// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/cache"
	"github.com/tomtom215/fieldsync/internal/metrics"
)

// TokenCache is the shared OAuth token cache. The engine owns one instance.
type TokenCache = cache.TTL[string, string]

// NewTokenCache creates a token cache. Entries carry their own TTL derived
// from expires_in, so the default only applies to tokens without one.
func NewTokenCache() *TokenCache {
	return cache.NewTTL[string, string](15 * time.Minute)
}

// Credentials are one tenant's client-credentials grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AppKey       string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// tokenSource obtains bearer tokens for one credential set.
type tokenSource struct {
	authURL string
	creds   Credentials
	http    *http.Client
	cache   *TokenCache
	skew    time.Duration
	key     string
}

func newTokenSource(authURL string, creds Credentials, httpClient *http.Client, tokens *TokenCache, skew time.Duration) *tokenSource {
	return &tokenSource{
		authURL: strings.TrimRight(authURL, "/"),
		creds:   creds,
		http:    httpClient,
		cache:   tokens,
		skew:    skew,
		key: cache.GenerateKey("token", []string{
			authURL, creds.ClientID, creds.ClientSecret,
		}),
	}
}

// Token returns a cached token or fetches a new one. Concurrent callers with
// the same credentials share one auth request.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	return t.cache.GetOrLoad(ctx, t.key, t.fetch)
}

// Invalidate drops the cached token after the source answered 401.
func (t *tokenSource) Invalidate() {
	t.cache.Delete(t.key)
}

func (t *tokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	tok, ttl, err := t.doFetch(ctx)
	metrics.RecordTokenRefresh(err)
	return tok, ttl, err
}

func (t *tokenSource) doFetch(ctx context.Context) (string, time.Duration, error) {
	const op = "POST /connect/token"

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", 0, &TransientSourceError{Op: op, Err: err}
	}
	defer closeQuietly(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, &TransientSourceError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", 0, &RateLimitError{Op: op, Attempts: 1, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode >= 500:
		return "", 0, &TransientSourceError{Op: op, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return "", 0, &PermanentSourceError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, &PermanentSourceError{Op: op, StatusCode: resp.StatusCode, Body: "empty access_token"}
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - t.skew
	if ttl <= 0 {
		ttl = time.Second
	}
	return tr.AccessToken, ttl, nil
}
