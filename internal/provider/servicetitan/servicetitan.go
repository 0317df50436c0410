// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package servicetitan implements provider capabilities over the ServiceTitan
// HTTP API. Production and integration modes differ only in hosts.
package servicetitan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/source"
)

// ModifiedSinceParam is the incremental filter query parameter.
const ModifiedSinceParam = "modifiedOnOrAfter"

// ClientPool builds one source.Client per (tenant, mode) so every domain of a
// tenant on the same host shares one rate limiter and breaker.
type ClientPool struct {
	cfg    config.SourceConfig
	tokens *source.TokenCache
	http   *http.Client

	mu      sync.Mutex
	clients map[string]*source.Client
}

// NewClientPool creates a pool. httpClient may be nil.
func NewClientPool(cfg config.SourceConfig, tokens *source.TokenCache, httpClient *http.Client) *ClientPool {
	return &ClientPool{cfg: cfg, tokens: tokens, http: httpClient, clients: make(map[string]*source.Client)}
}

// Client returns the cached client for tenant and mode.
func (p *ClientPool) Client(tenant config.TenantConfig, mode string) (*source.Client, error) {
	name := tenant.ID + "/" + mode

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[name]; ok {
		return c, nil
	}

	baseURL, authURL := p.cfg.BaseURL, p.cfg.AuthURL
	switch mode {
	case config.ModeProduction:
	case config.ModeIntegration:
		baseURL, authURL = p.cfg.IntegrationBaseURL, p.cfg.IntegrationAuthURL
	default:
		return nil, fmt.Errorf("unknown provider mode %q", mode)
	}

	c, err := source.NewClient(source.Options{
		Name:         name,
		BaseURL:      baseURL,
		AuthURL:      authURL,
		SourceTenant: tenant.SourceTenant,
		Credentials: source.Credentials{
			ClientID:     tenant.ClientID,
			ClientSecret: tenant.ClientSecret,
			AppKey:       tenant.AppKey,
		},
		Timeout:           p.cfg.Timeout,
		MaxAttempts:       p.cfg.MaxAttempts,
		RetryBase:         p.cfg.RetryBase,
		RetryMaxDelay:     p.cfg.RetryMaxDelay,
		TokenRefreshSkew:  p.cfg.TokenRefreshSkew,
		RequestsPerSecond: p.cfg.RequestsPerSecond,
		Burst:             p.cfg.Burst,
		BreakerEnabled:    p.cfg.BreakerEnabled,
		Tokens:            p.tokens,
		HTTPClient:        p.http,
	})
	if err != nil {
		return nil, err
	}
	p.clients[name] = c
	return c, nil
}

// Register adds factories for every domain in both modes.
func Register(reg *provider.Registry, pool *ClientPool) {
	for _, domain := range provider.Domains {
		for _, mode := range []string{config.ModeProduction, config.ModeIntegration} {
			reg.Register(provider.Key{Domain: domain, Mode: mode}, func(tenant config.TenantConfig, key provider.Key) (provider.Provider, error) {
				c, err := pool.Client(tenant, key.Mode)
				if err != nil {
					return nil, err
				}
				return New(c, key.Domain), nil
			})
		}
	}
}

// Provider serves one domain through a source client.
type Provider struct {
	client *source.Client
	domain string
}

// New creates a provider for domain.
func New(client *source.Client, domain string) *Provider {
	return &Provider{client: client, domain: domain}
}

// Name returns "<client>/<domain>".
func (p *Provider) Name() string { return p.client.Name() + "/" + p.domain }

// BreakerState returns the underlying client's circuit state.
func (p *Provider) BreakerState() string { return p.client.BreakerState() }

// List walks the resource. Continuation resources are read from the export feed.
func (p *Provider) List(ctx context.Context, req provider.ListRequest, fn func(source.Page) error) error {
	resource := req.Resource
	if req.Pagination == source.PaginationContinuation {
		resource = "export/" + resource
	}

	query := url.Values{}
	for k, v := range req.Query {
		query[k] = v
	}
	if req.ModifiedSince != nil {
		query.Set(ModifiedSinceParam, FormatTime(*req.ModifiedSince))
	}

	return p.client.FetchAllPages(ctx, source.PageRequest{
		Path:       p.client.TenantPath(p.domain, resource),
		Query:      query,
		Pagination: req.Pagination,
		PageSize:   req.PageSize,
		Delay:      req.Delay,
	}, fn)
}

// UpdateCategory PATCHes a pricebook category.
func (p *Provider) UpdateCategory(ctx context.Context, sourceID string, patch map[string]any) error {
	if sourceID == "" {
		return source.NewValidationError("sourceId", "category has no source id")
	}
	path := p.client.TenantPath(provider.DomainPricebook, "categories/"+url.PathEscape(sourceID))
	if _, _, err := p.client.Request(ctx, http.MethodPatch, path, nil, patch); err != nil {
		return err
	}
	return nil
}

// Download fetches a pricebook image by path.
func (p *Provider) Download(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, source.NewValidationError("path", "image path is empty")
	}
	_, data, err := p.client.Request(ctx, http.MethodGet,
		p.client.TenantPath(provider.DomainPricebook, "images"), url.Values{"path": {path}}, nil)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// FormatTime renders a watermark the way the source filter expects it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
