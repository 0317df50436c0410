// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

/*
Package supervisor provides process supervision for Fieldsync using suture v4.

Every long-running component runs under a hierarchical supervisor tree with
automatic restart, failure isolation and graceful shutdown.

# Overview

	RootSupervisor ("fieldsync")
	├── DataSupervisor ("data-layer")
	│   ├── token cache janitor
	│   ├── provider set cache janitor
	│   └── queue-monitor
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   └── notify-bridge
	├── WorkerSupervisor ("worker-layer")
	│   ├── jobs-inbound, jobs-outbound, jobs-notification, jobs-image, jobs-workflow
	│   └── scheduler
	└── APISupervisor ("api-layer")
	    └── http-server

A job pool that keeps crashing backs off inside the worker layer while the
admin API keeps answering health and status requests.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFromServer(cfg.Server))
	if err != nil {
		return err
	}
	tree.AddWorkerService(pool)
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	<-errCh

# Configuration

Zero values in TreeConfig take suture's defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# Service Interface

	type Service interface {
	    Serve(ctx context.Context) error
	}

  - Return nil: stopped cleanly, not restarted
  - Return error: crashed, restarted
  - Context canceled: shutdown requested, return promptly

# Not Supervised

DuckDB, the Badger asset store and the notification bus are opened by the
engine and closed after the tree stops; they have no goroutines of their own
to restart.

Supervisor events are logged through sutureslog on the slog bridge of the
service logger.
*/
package supervisor
