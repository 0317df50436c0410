// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package provider resolves source capabilities per tenant and domain.
//
// Implementations register a Factory under a (domain, mode) Key. A tenant's
// config picks a mode per domain; the engine resolves every domain once at
// construction and keeps the resulting Set.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/source"
)

// Source API domains.
const (
	DomainCRM       = "crm"
	DomainJPM       = "jpm"
	DomainPricebook = "pricebook"
	DomainSettings  = "settings"
)

// Domains lists every known domain.
var Domains = []string{DomainCRM, DomainJPM, DomainPricebook, DomainSettings}

// ListRequest describes one listing against a domain resource.
type ListRequest struct {
	Resource      string
	Pagination    source.Pagination
	PageSize      int
	Delay         time.Duration
	ModifiedSince *time.Time
	Query         url.Values
}

// RecordSource lists records page by page.
type RecordSource interface {
	List(ctx context.Context, req ListRequest, fn func(source.Page) error) error
}

// CategoryWriter writes category changes back to the source.
type CategoryWriter interface {
	UpdateCategory(ctx context.Context, sourceID string, patch map[string]any) error
}

// AssetSource downloads binary assets.
type AssetSource interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// Provider is everything a factory builds for one domain.
type Provider interface {
	RecordSource
	CategoryWriter
	AssetSource
	Name() string
	BreakerState() string
}

// Key identifies a factory.
type Key struct {
	Domain string
	Mode   string
}

func (k Key) String() string { return k.Domain + "/" + k.Mode }

// Factory builds the provider for one tenant and key.
type Factory func(tenant config.TenantConfig, key Key) (Provider, error)

// Registry maps keys to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Key]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Key]Factory)}
}

// Register adds or replaces the factory for key.
func (r *Registry) Register(key Key, f Factory) {
	r.mu.Lock()
	r.factories[key] = f
	r.mu.Unlock()
}

// Keys returns the registered keys in stable order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Resolve builds the provider for one tenant and domain.
func (r *Registry) Resolve(tenant config.TenantConfig, domain string) (Provider, error) {
	key := Key{Domain: domain, Mode: tenant.ModeFor(domain)}
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", key)
	}
	p, err := f(tenant, key)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %s for tenant %s: %w", key, tenant.ID, err)
	}
	return p, nil
}

// Set holds the resolved providers of one tenant.
type Set struct {
	TenantID string
	byDomain map[string]Provider
}

// ResolveTenant resolves every domain for tenant.
func (r *Registry) ResolveTenant(tenant config.TenantConfig) (*Set, error) {
	set := &Set{TenantID: tenant.ID, byDomain: make(map[string]Provider, len(Domains))}
	for _, d := range Domains {
		p, err := r.Resolve(tenant, d)
		if err != nil {
			return nil, err
		}
		set.byDomain[d] = p
	}
	return set, nil
}

// NewSet builds a Set from explicit providers. Used by tests and tools.
func NewSet(tenantID string, byDomain map[string]Provider) *Set {
	return &Set{TenantID: tenantID, byDomain: byDomain}
}

// For returns the provider of domain.
func (s *Set) For(domain string) (Provider, error) {
	p, ok := s.byDomain[domain]
	if !ok {
		return nil, fmt.Errorf("tenant %s has no provider for domain %s", s.TenantID, domain)
	}
	return p, nil
}

// BreakerStates returns the circuit state of each domain's provider.
func (s *Set) BreakerStates() map[string]string {
	out := make(map[string]string, len(s.byDomain))
	for d, p := range s.byDomain {
		out[d] = p.BreakerState()
	}
	return out
}
