// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fieldsync/internal/api"
	"github.com/tomtom215/fieldsync/internal/assets"
	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/fetchers"
	"github.com/tomtom215/fieldsync/internal/jobs"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/notify"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/provider/servicetitan"
	"github.com/tomtom215/fieldsync/internal/pushback"
	"github.com/tomtom215/fieldsync/internal/scheduler"
	"github.com/tomtom215/fieldsync/internal/source"
	"github.com/tomtom215/fieldsync/internal/syncstate"
	"github.com/tomtom215/fieldsync/internal/websocket"
)

// apiConnHeadroom is added to the pool concurrency when sizing the
// database connection pool, so API reads never wait behind workers.
const apiConnHeadroom = 4

// Options are the optional collaborators of New.
type Options struct {
	// HTTPClient is used for every source request. nil = a default client.
	HTTPClient *http.Client
	// Registry overrides the provider registry. nil = the ServiceTitan
	// providers for every domain and mode.
	Registry *provider.Registry
}

// Engine wires the sync engine components together.
type Engine struct {
	cfg *config.Config

	DB     *database.DB
	Bus    *notify.Bus
	Hub    *websocket.Hub
	Bridge *notify.Bridge
	Assets *assets.Store

	Tokens     *source.TokenCache
	providers  *providerSets
	Tracker    *syncstate.Tracker
	Runner     *fetchers.Runner
	Categories *categories.Service
	Reconciler *pushback.Reconciler
	Queue      *jobs.Queue
	Jobs       *jobs.Registry
	Pools      []*jobs.Pool
	Scheduler  *scheduler.Scheduler
}

// New opens storage and builds every component. Nothing runs until the
// services returned by Services are started.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Engine, err error) {
	if cfg == nil {
		return nil, errors.New("engine: nil config")
	}
	logger := logging.WithComponent("engine")
	tenants := cfg.EffectiveTenants()
	if len(tenants) == 0 {
		return nil, errors.New("engine: no tenants configured")
	}

	// Returns below replace the result with nil; the defer keeps its own handle.
	e := &Engine{cfg: cfg}
	defer func() {
		if err != nil {
			if closeErr := e.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Msg("cleanup after failed start")
			}
		}
	}()

	poolConfigs := jobs.PoolConfigs(cfg.Jobs)
	dbCfg := cfg.Database
	if need := totalConcurrency(poolConfigs) + apiConnHeadroom; dbCfg.MaxOpenConns < need {
		dbCfg.MaxOpenConns = need
	}
	if e.DB, err = database.New(&dbCfg); err != nil {
		return nil, fmt.Errorf("engine: open database: %w", err)
	}

	if e.Bus, err = notify.New(cfg.Notify, cfg.NATS, notify.NewLogger()); err != nil {
		return nil, fmt.Errorf("engine: notify bus: %w", err)
	}
	e.Hub = websocket.NewHub()
	if e.Bridge, err = notify.NewBridge(e.Bus, e.Hub, notify.NewLogger()); err != nil {
		return nil, fmt.Errorf("engine: notify bridge: %w", err)
	}

	registry := opts.Registry
	e.Tokens = source.NewTokenCache()
	if registry == nil {
		registry = provider.NewRegistry()
		servicetitan.Register(registry, servicetitan.NewClientPool(cfg.Source, e.Tokens, opts.HTTPClient))
	}
	e.providers = newProviderSets(registry, tenants, DefaultProviderSetTTL)
	if err = e.providers.resolveAll(ctx); err != nil {
		return nil, fmt.Errorf("engine: resolve providers: %w", err)
	}

	catalogue := fetchers.DefaultCatalogue()
	if len(cfg.Sync.EntityTypes) > 0 {
		if catalogue, err = catalogue.Restrict(cfg.Sync.EntityTypes); err != nil {
			return nil, fmt.Errorf("engine: sync entity types: %w", err)
		}
	}

	e.Tracker = syncstate.New(e.DB, e.Bus, cfg.Sync.StaleAfter)
	e.Runner = fetchers.NewRunner(e.DB, e.Tracker, e.providers.recordSource, fetchers.Options{
		PageSize:  cfg.Sync.PageSize,
		PageDelay: cfg.Sync.PageDelay,
		Catalogue: catalogue,
	})
	e.Queue = jobs.NewQueue(e.DB, cfg.Jobs).WithRateLimitCooldown(cfg.Source.RateLimitCooldown)

	if desc, ok := catalogue.Get(fetchers.EntityCategories); ok {
		e.Categories = categories.New(e.DB, desc.RawTable(), e.Bus)
		e.Runner.OnComplete(fetchers.EntityCategories, categoriesHook(e.Categories, e.Queue, cfg.Sync.DownloadImages))
	} else {
		desc, _ = fetchers.DefaultCatalogue().Get(fetchers.EntityCategories)
		e.Categories = categories.New(e.DB, desc.RawTable(), e.Bus)
	}
	e.Reconciler = pushback.New(e.DB, e.Tracker, e.providers.categoryWriter, e.Bus)

	if e.Assets, err = assets.Open(cfg.Assets); err != nil {
		return nil, fmt.Errorf("engine: open assets: %w", err)
	}

	e.Jobs = jobs.NewRegistry()
	jobs.RegisterHandlers(e.Jobs, jobs.Deps{
		Queue:     e.Queue,
		Sync:      e.Runner,
		Pushback:  e.Reconciler,
		Events:    e.Bus,
		Images:    e.Assets,
		Assets:    e.providers.assetSource,
		Webhook:   notify.NewWebhook(cfg.Notify.WebhookTimeout),
		Webhooks:  e.webhookURL,
		Retention: cfg.Jobs.RetentionPeriod,
	})
	for _, pc := range poolConfigs {
		e.Pools = append(e.Pools, jobs.NewPool(pc, e.Queue, e.Jobs))
	}

	if e.Scheduler, err = scheduler.New(cfg.Schedules, e.DB, e.Queue, e.providers.tenantIDs()); err != nil {
		return nil, fmt.Errorf("engine: scheduler: %w", err)
	}

	logger.Info().
		Int("tenants", len(tenants)).
		Strs("entity_types", catalogue.EntityTypes()).
		Str("notify_backend", e.Bus.Backend()).
		Int("db_conns", dbCfg.MaxOpenConns).
		Msg("engine built")
	return e, nil
}

func totalConcurrency(pools []jobs.PoolConfig) int {
	n := 0
	for _, pc := range pools {
		n += pc.Concurrency
	}
	return n
}

func (e *Engine) webhookURL(tenantID string) string {
	t, ok := e.cfg.Tenant(tenantID)
	if !ok {
		return ""
	}
	return t.WebhookURL
}

// BreakerStates reports the source circuit state per domain of a tenant.
func (e *Engine) BreakerStates(tenantID string) (map[string]string, error) {
	return e.providers.breakerStates(tenantID)
}

// Deps returns the components the admin API serves.
func (e *Engine) Deps() *api.Deps {
	return &api.Deps{
		Scheduler:  e.Scheduler,
		States:     e.Tracker,
		Catalogue:  e.Runner.Catalogue(),
		Categories: e.Categories,
		Pusher:     e.Reconciler,
		Jobs:       e.Queue,
		Cache:      e.Runner,
		Breakers:   e,
		DB:         e.DB,
		Hub:        e.Hub,
	}
}

// ServiceSet groups the long-running parts of the engine by supervisor layer.
type ServiceSet struct {
	Data      []suture.Service
	Messaging []suture.Service
	Workers   []suture.Service
}

// All returns every service in start order.
func (s ServiceSet) All() []suture.Service {
	out := make([]suture.Service, 0, len(s.Data)+len(s.Messaging)+len(s.Workers))
	out = append(out, s.Data...)
	out = append(out, s.Messaging...)
	return append(out, s.Workers...)
}

// Services returns the long-running parts of the engine.
func (e *Engine) Services() ServiceSet {
	set := ServiceSet{
		Data:      []suture.Service{e.Tokens, e.providers.sets, newQueueMonitor(e.Queue, DefaultQueueMonitorInterval)},
		Messaging: []suture.Service{e.Hub, e.Bridge},
	}
	for _, p := range e.Pools {
		set.Workers = append(set.Workers, p)
	}
	set.Workers = append(set.Workers, e.Scheduler)
	return set
}

// Close releases storage and the bus. Services must be stopped first.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.Bus != nil {
		if err := e.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	if e.Assets != nil {
		if err := e.Assets.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close assets: %w", err))
		}
	}
	if e.DB != nil {
		if err := e.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
