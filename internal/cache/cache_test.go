// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock returns a controllable clock for expiry tests.
func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}
}

func TestTTLBasicOperations(t *testing.T) {
	t.Parallel()
	c := NewTTL[string, int](time.Minute)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) should miss")
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) after Delete should miss")
	}

	c.Set("x", 1)
	c.Set("y", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestTTLExpiration(t *testing.T) {
	t.Parallel()
	c := NewTTL[string, string](time.Minute)
	now, advance := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c.now = now

	c.Set("k", "v")
	c.SetWithTTL("long", "v", time.Hour)
	advance(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be valid before TTL")
	}
	advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should expire at TTL")
	}

	c.cleanup()
	if c.Len() != 1 {
		t.Errorf("Len() after cleanup = %d, want 1", c.Len())
	}
	if s := c.GetStats(); s.Evictions != 1 || s.LastCleanup.IsZero() {
		t.Errorf("stats = %+v", s)
	}
}

func TestTTLSetWithNonPositiveTTL(t *testing.T) {
	t.Parallel()
	c := NewTTL[string, string](time.Minute)
	c.SetWithTTL("k", "v", 0)
	if _, ok := c.Get("k"); ok {
		t.Error("zero TTL should not store")
	}
}

func TestGetOrLoadDeduplicatesConcurrentLoads(t *testing.T) {
	t.Parallel()
	c := NewTTL[string, string](time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (string, time.Duration, error) {
		calls.Add(1)
		<-release
		return "token", 0, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "cred", load)
			if err != nil {
				t.Errorf("GetOrLoad error = %v", err)
			}
			results[i] = v
		}(i)
	}

	// Let all goroutines block on the same load.
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("load called %d times, want 1", got)
	}
	for i, v := range results {
		if v != "token" {
			t.Errorf("results[%d] = %q, want token", i, v)
		}
	}
	if v, ok := c.Get("cred"); !ok || v != "token" {
		t.Error("loaded value should be cached")
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	t.Parallel()
	c := NewTTL[string, string](time.Minute)
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, time.Duration, error) {
		return "", 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrLoad error = %v, want boom", err)
	}

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, time.Duration, error) {
		return "ok", time.Second, nil
	})
	if err != nil || v != "ok" {
		t.Errorf("second GetOrLoad = %q, %v; want ok, nil", v, err)
	}
	if s := c.GetStats(); s.Loads != 2 {
		t.Errorf("Loads = %d, want 2", s.Loads)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	c := NewTTL[string, string](time.Minute)
	c.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop")
	}
	if c.GetStats().LastCleanup.IsZero() {
		t.Error("cleanup should have run at least once")
	}
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()
	k1 := GenerateKey("token", map[string]string{"client": "a", "secret": "s3cr3t"})
	k2 := GenerateKey("token", map[string]string{"client": "a", "secret": "s3cr3t"})
	k3 := GenerateKey("token", map[string]string{"client": "b", "secret": "s3cr3t"})

	if k1 != k2 {
		t.Error("same params should produce the same key")
	}
	if k1 == k3 {
		t.Error("different params should produce different keys")
	}
	if strings.Contains(k1, "s3cr3t") {
		t.Error("key must not contain the secret")
	}
	if !strings.HasPrefix(k1, "token:") {
		t.Errorf("key %q should start with prefix", k1)
	}
}
