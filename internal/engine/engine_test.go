// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/fieldsync/internal/categories"
	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/database"
	"github.com/tomtom215/fieldsync/internal/fetchers"
	"github.com/tomtom215/fieldsync/internal/models"
	"github.com/tomtom215/fieldsync/internal/provider"
)

const categoriesPage = `[
	{"id":7,"name":"Water Heaters","image":"images/heaters.png","active":true,"position":1,"modifiedOn":"2026-01-01T00:00:00Z"},
	{"id":8,"name":"Furnaces","active":true,"position":2,"modifiedOn":"2026-01-02T00:00:00Z"}
]`

// newSourceServer serves a token endpoint and one page of categories.
func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/connect/token":
			_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
		case strings.HasSuffix(r.URL.Path, "/pricebook/v2/tenant/555/categories"):
			fmt.Fprintf(w, `{"page":1,"hasMore":false,"data":%s}`, categoriesPage)
		default:
			_, _ = w.Write([]byte(`{"page":1,"hasMore":false,"data":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			BaseURL:       baseURL,
			AuthURL:       baseURL,
			Mode:          config.ModeProduction,
			Timeout:       time.Second,
			MaxAttempts:   1,
			RetryBase:     time.Millisecond,
			RetryMaxDelay: time.Millisecond,
		},
		Tenants: []config.TenantConfig{{
			ID:           "acme",
			SourceTenant: "555",
			ClientID:     "c",
			ClientSecret: "s",
			Mode:         config.ModeProduction,
			WebhookURL:   "https://hooks.example/acme",
		}},
		Sync: config.SyncConfig{PageSize: 50, DownloadImages: true},
		Jobs: config.JobsConfig{
			PollInterval:  10 * time.Millisecond,
			LeaseDuration: time.Minute,
			Inbound:       config.FamilyConfig{Concurrency: 1},
			Outbound:      config.FamilyConfig{Concurrency: 1},
			Notification:  config.FamilyConfig{Concurrency: 1},
			Image:         config.FamilyConfig{Concurrency: 1},
			Workflow:      config.FamilyConfig{Concurrency: 1},
		},
		Schedules: config.SchedulesConfig{Timezone: "UTC"},
		Assets:    config.AssetsConfig{InMemory: true, MaxBytes: 1 << 20},
		Notify:    config.NotifyConfig{Backend: config.NotifyBackendChannel, Topic: "test.events"},
		Database:  config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1, MaxOpenConns: 1},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return e
}

func TestNew_CategoriesSyncRefreshesAndQueuesImages(t *testing.T) {
	t.Parallel()
	srv := newSourceServer(t)
	e := newTestEngine(t, testConfig(srv.URL))
	ctx := context.Background()

	res, err := e.Runner.Run(ctx, "acme", fetchers.EntityCategories, models.SyncTypeFull)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Records != 2 || res.Errors != 0 {
		t.Fatalf("Run() = %+v, want 2 records and no errors", res)
	}

	forest, err := e.Categories.ListTree(ctx, "acme", categories.Filter{})
	if err != nil {
		t.Fatalf("ListTree() error = %v", err)
	}
	if len(forest) != 2 {
		t.Errorf("roots = %d, want 2", len(forest))
	}

	queued, err := e.Queue.List(ctx, database.JobFilter{TenantID: "acme", Family: models.FamilyImage})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(queued) != 1 || queued[0].Type != models.JobTypeImage {
		t.Fatalf("image jobs = %+v, want one image_download", queued)
	}

	// A second sync does not queue the same image again.
	if _, err := e.Runner.Run(ctx, "acme", fetchers.EntityCategories, models.SyncTypeFull); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	queued, err = e.Queue.List(ctx, database.JobFilter{TenantID: "acme", Family: models.FamilyImage})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(queued) != 1 {
		t.Errorf("image jobs after resync = %d, want 1", len(queued))
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	srv := newSourceServer(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
		opts   Options
		want   string
	}{
		{
			name:   "no tenants",
			mutate: func(c *config.Config) { c.Tenants = nil },
			want:   "no tenants",
		},
		{
			name:   "unknown entity type",
			mutate: func(c *config.Config) { c.Sync.EntityTypes = []string{"invoices"} },
			want:   "sync entity types",
		},
		{
			name:   "bad schedule",
			mutate: func(c *config.Config) { c.Schedules.Full = "not a cron" },
			want:   "scheduler",
		},
		{
			name:   "unknown notify backend",
			mutate: func(c *config.Config) { c.Notify.Backend = "carrier-pigeon" },
			want:   "notify bus",
		},
		{
			name:   "missing provider",
			mutate: func(*config.Config) {},
			opts:   Options{Registry: provider.NewRegistry()},
			want:   "resolve providers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(srv.URL)
			tt.mutate(cfg)
			e, err := New(context.Background(), cfg, tt.opts)
			if err == nil {
				_ = e.Close()
				t.Fatal("New() error = nil")
			}
			if e != nil {
				t.Error("New() returned an engine with an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestEngine_DepsAndServices(t *testing.T) {
	t.Parallel()
	srv := newSourceServer(t)
	e := newTestEngine(t, testConfig(srv.URL))

	deps := e.Deps()
	if deps.Scheduler == nil || deps.States == nil || deps.Jobs == nil || deps.Cache == nil || deps.Hub == nil {
		t.Fatalf("Deps() = %+v, missing components", deps)
	}

	names := map[string]bool{}
	services := e.Services()
	if len(services.Workers) != len(e.Pools)+1 {
		t.Errorf("workers = %d, want pools plus scheduler", len(services.Workers))
	}
	for _, svc := range services.All() {
		names[fmt.Sprint(svc)] = true
	}
	for _, want := range []string{"scheduler", "queue-monitor", "jobs-inbound", "jobs-image", "ttl-cache"} {
		if !names[want] {
			t.Errorf("Services() missing %s (have %v)", want, names)
		}
	}

	states, err := e.BreakerStates("acme")
	if err != nil {
		t.Fatalf("BreakerStates() error = %v", err)
	}
	if len(states) != len(provider.Domains) {
		t.Errorf("BreakerStates() = %v, want one per domain", states)
	}
	if _, err := e.BreakerStates("nobody"); err == nil {
		t.Error("BreakerStates(unknown) error = nil")
	}

	if got := e.webhookURL("acme"); got != "https://hooks.example/acme" {
		t.Errorf("webhookURL() = %q", got)
	}
	if got := e.webhookURL("nobody"); got != "" {
		t.Errorf("webhookURL(unknown) = %q, want empty", got)
	}
}

func TestEngine_CloseNil(t *testing.T) {
	t.Parallel()
	var e *Engine
	if err := e.Close(); err != nil {
		t.Errorf("Close() on nil engine error = %v", err)
	}
	if err := (&Engine{}).Close(); err != nil {
		t.Errorf("Close() on empty engine error = %v", err)
	}
}
