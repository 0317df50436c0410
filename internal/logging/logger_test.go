// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

// The tests below swap the global logger and therefore do not run in parallel.

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("entity_type", "customers").Msg("sync started")

	out := buf.String()
	if !strings.Contains(out, `"message":"sync started"`) {
		t.Errorf("expected message field, got: %s", out)
	}
	if !strings.Contains(out, `"entity_type":"customers"`) {
		t.Errorf("expected entity_type field, got: %s", out)
	}
}

func TestCtxAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	ctx := ContextWithTenantID(context.Background(), "tenant-1")
	ctx = ContextWithSyncID(ctx, "sync-9")
	ctx = ContextWithCorrelationID(ctx, "abcd1234")

	Ctx(ctx).Info().Msg("page upserted")

	out := buf.String()
	for _, want := range []string{`"tenant_id":"tenant-1"`, `"sync_id":"sync-9"`, `"correlation_id":"abcd1234"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
	if strings.Contains(out, "request_id") {
		t.Errorf("request_id must be omitted when absent, got: %s", out)
	}
}

func TestSlogHandlerRoutesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	logger := NewSlogLogger().With("supervisor", "root").WithGroup("svc")
	logger.Error("service failed", "name", "scheduler", "err", errors.New("boom"), "restarts", 3)

	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"supervisor":"root"`, `"svc.name":"scheduler"`, `"svc.err":"boom"`, `"svc.restarts":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestZerologLevelMapping(t *testing.T) {
	t.Parallel()

	cases := map[slog.Level]zerolog.Level{
		slog.LevelDebug - 4: zerolog.TraceLevel,
		slog.LevelDebug:     zerolog.DebugLevel,
		slog.LevelInfo:      zerolog.InfoLevel,
		slog.LevelWarn:      zerolog.WarnLevel,
		slog.LevelError:     zerolog.ErrorLevel,
		slog.LevelError + 4: zerolog.ErrorLevel,
	}
	for in, want := range cases {
		if got := zerologLevel(in); got != want {
			t.Errorf("zerologLevel(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("expected 8-character correlation ID, got %d", len(a))
	}
	if a == b {
		t.Error("expected unique correlation IDs")
	}
}
