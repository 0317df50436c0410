// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/tomtom215/fieldsync/docs" // swagger spec
	"github.com/tomtom215/fieldsync/internal/api"
	"github.com/tomtom215/fieldsync/internal/auth"
	"github.com/tomtom215/fieldsync/internal/authz"
	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/engine"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/supervisor"
	"github.com/tomtom215/fieldsync/internal/supervisor/services"
)

// Version information set via ldflags during build.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fieldsync %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "token":
			if err := runToken(&cfg.Security, args[1:], os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (commands: token)\n", args[0])
			os.Exit(2)
		}
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config) error {
	logging.Info().
		Str("version", Version).
		Int("tenants", len(cfg.EffectiveTenants())).
		Str("db_path", cfg.Database.Path).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("notify_backend", cfg.Notify.Backend).
		Msg("Starting Fieldsync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFromServer(cfg.Server))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// Without an engine the API still answers health probes, reporting not ready.
	var deps *api.Deps
	eng, err := engine.New(ctx, cfg, engine.Options{})
	if err != nil {
		logging.Error().Err(err).Msg("Engine unavailable, serving health endpoints only")
	} else {
		defer func() {
			if err := eng.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing engine")
			}
		}()
		deps = eng.Deps()

		svcs := eng.Services()
		for _, svc := range svcs.Data {
			tree.AddDataService(svc)
		}
		for _, svc := range svcs.Messaging {
			tree.AddMessagingService(svc)
		}
		for _, svc := range svcs.Workers {
			tree.AddWorkerService(svc)
		}
		logging.Info().Int("services", len(svcs.All())).Msg("Engine services added to supervisor tree")
	}

	router, err := newRouter(cfg, deps)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout))

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The channel receives exactly one value and is never closed.
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	logging.Info().Msg("Fieldsync stopped gracefully")
	return nil
}

func newRouter(cfg *config.Config, deps *api.Deps) (*api.Router, error) {
	authn, err := auth.NewMiddleware(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("initialize authentication: %w", err)
	}
	if authn.Mode() == auth.AuthModeNone {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  Every request acts as admin of the default tenant.")
		logging.Warn().Msg("  Use only for local development or isolated networks.")
		logging.Warn().Msg("============================================================")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	enforcer, err := authz.NewEnforcer(authz.ConfigFromSecurity(&cfg.Security))
	if err != nil {
		return nil, fmt.Errorf("initialize authorization: %w", err)
	}

	handler := api.NewHandler(deps, cfg.Security.CORSOrigins)
	return api.NewRouter(handler, authn, authz.NewMiddleware(enforcer), api.ChiMiddlewareConfigFromSecurity(&cfg.Security)), nil
}
