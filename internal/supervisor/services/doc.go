// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package services adapts components without a Serve method to suture v4.
//
// Engine components (worker pools, scheduler, websocket hub, notification
// bridge, caches) implement suture.Service themselves. Only the HTTP server
// needs a wrapper, translating ListenAndServe/Shutdown into a context-aware
// Serve:
//
//	server := &http.Server{Addr: addr, Handler: router.SetupChi()}
//	tree.AddAPIService(services.NewHTTPServerService(server, addr, 10*time.Second))
package services
