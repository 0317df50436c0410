// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/fieldsync/internal/cache"
	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/provider"
)

// DefaultProviderSetTTL is how long a resolved tenant set is reused before
// the registry is consulted again. Clients are pooled underneath, so a
// re-resolve keeps limiter and breaker state.
const DefaultProviderSetTTL = time.Hour

// providerSets resolves and caches the provider Set of each tenant.
type providerSets struct {
	registry *provider.Registry
	tenants  map[string]config.TenantConfig
	sets     *cache.TTL[string, *provider.Set]
}

func newProviderSets(registry *provider.Registry, tenants []config.TenantConfig, ttl time.Duration) *providerSets {
	if ttl <= 0 {
		ttl = DefaultProviderSetTTL
	}
	byID := make(map[string]config.TenantConfig, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}
	return &providerSets{
		registry: registry,
		tenants:  byID,
		sets:     cache.NewTTL[string, *provider.Set](ttl),
	}
}

// resolveAll resolves every tenant up front so misconfiguration fails
// construction instead of the first job.
func (p *providerSets) resolveAll(ctx context.Context) error {
	for _, id := range p.tenantIDs() {
		if _, err := p.set(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (p *providerSets) set(ctx context.Context, tenantID string) (*provider.Set, error) {
	tenant, ok := p.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("unknown tenant %q", tenantID)
	}
	return p.sets.GetOrLoad(ctx, tenantID, func(context.Context) (*provider.Set, time.Duration, error) {
		set, err := p.registry.ResolveTenant(tenant)
		return set, 0, err
	})
}

func (p *providerSets) tenantIDs() []string {
	ids := make([]string, 0, len(p.tenants))
	for id := range p.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// recordSource serves fetchers.SourceResolver.
func (p *providerSets) recordSource(tenantID, domain string) (provider.RecordSource, error) {
	set, err := p.set(context.Background(), tenantID)
	if err != nil {
		return nil, err
	}
	return set.For(domain)
}

// categoryWriter serves pushback.WriterResolver. Categories live in the
// pricebook domain.
func (p *providerSets) categoryWriter(tenantID string) (provider.CategoryWriter, error) {
	set, err := p.set(context.Background(), tenantID)
	if err != nil {
		return nil, err
	}
	return set.For(provider.DomainPricebook)
}

// assetSource serves the image job handler.
func (p *providerSets) assetSource(tenantID string) (provider.AssetSource, error) {
	set, err := p.set(context.Background(), tenantID)
	if err != nil {
		return nil, err
	}
	return set.For(provider.DomainPricebook)
}

func (p *providerSets) breakerStates(tenantID string) (map[string]string, error) {
	set, err := p.set(context.Background(), tenantID)
	if err != nil {
		return nil, err
	}
	return set.BreakerStates(), nil
}
