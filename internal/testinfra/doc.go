// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

// Package testinfra provides shared test infrastructure.
//
// # DuckDB
//
// NewTestDB opens an in-memory DuckDB database with the full schema and
// closes it when the test ends. Calls are serialized across packages' parallel
// tests through a process-wide semaphore:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    db := testinfra.NewTestDB(t)
//	    ...
//	}
//
// # Webhook server
//
// MockWebhookServer captures every request it receives, for tenant webhook
// delivery tests.
//
// # NATS container (integration)
//
// With -tags integration, NewNATSContainer starts a NATS JetStream server
// with testcontainers-go:
//
//	//go:build integration && nats
//
//	func TestBusOverJetStream(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    natsC, err := testinfra.NewNATSContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, natsC.Container)
//	    // natsC.URL is nats://host:port
//	}
//
// Run integration tests with:
//
//	go test -tags integration,nats ./internal/notify/...
package testinfra
