// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package engine builds the sync engine from configuration.
//
// New opens the DuckDB store, the asset store and the notification bus,
// resolves a provider Set per tenant, and wires the fetchers runner, the
// sync tracker, the categories layer, the push-back reconciler, the job
// queue with its family pools and the scheduler.
//
// Nothing runs on construction. The caller adds Services to a supervisor
// tree and serves Deps through the admin API:
//
//	eng, err := engine.New(ctx, cfg, engine.Options{})
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//	services := eng.Services()
//	for _, svc := range services.Workers {
//		tree.AddWorkerService(svc)
//	}
//	handler := api.NewHandler(eng.Deps(), cfg.Security.CORSOrigins)
//
// After a categories sync completes the master categories are rebuilt from
// the raw cache and, when sync.download_images is set, one image job is
// queued per referenced image.
package engine
