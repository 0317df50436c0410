// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package assets

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/source"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type mockAssetSource struct {
	mu        sync.Mutex
	downloads []string

	downloadFunc func(ctx context.Context, path string) ([]byte, error)
}

func (m *mockAssetSource) Download(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	m.downloads = append(m.downloads, path)
	m.mu.Unlock()
	if m.downloadFunc != nil {
		return m.downloadFunc(ctx, path)
	}
	return pngHeader, nil
}

func (m *mockAssetSource) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.downloads)
}

func openTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := Open(config.AssetsConfig{InMemory: true, MaxBytes: maxBytes})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetList(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	ctx := context.Background()

	asset, err := s.Put(ctx, "acme", "12", "img/drains.png", pngHeader)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if asset.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", asset.ContentType)
	}
	if asset.URLHash != URLHash("img/drains.png") || asset.Size != int64(len(pngHeader)) {
		t.Errorf("Put() = %+v", asset)
	}

	got, data, err := s.Get(ctx, "acme", "12")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(data, pngHeader) || got.Path != "img/drains.png" {
		t.Errorf("Get() = %+v, %q", got, data)
	}

	if _, err := s.Put(ctx, "other", "12", "img/x.png", pngHeader); err != nil {
		t.Fatalf("Put(other) error = %v", err)
	}
	list, err := s.List(ctx, "acme")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].CategoryID != "12" {
		t.Errorf("List(acme) = %+v, want only category 12", list)
	}

	st, err := s.Stats(ctx)
	if err != nil || st.Assets != 2 {
		t.Errorf("Stats() = %+v, %v", st, err)
	}

	if err := s.Delete(ctx, "acme", "12"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := s.Get(ctx, "acme", "12"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.RunGC(); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
}

func TestStore_RejectsOversizedImage(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 4)

	_, err := s.Put(context.Background(), "acme", "1", "img/big.png", pngHeader)
	var verr *source.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Put() error = %v, want ValidationError", err)
	}
	if !source.IsTerminal(err) {
		t.Error("an oversized image must not be retried")
	}
}

func TestStore_FetchSkipsUnchangedPath(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	src := &mockAssetSource{}
	ctx := context.Background()

	stored, err := s.Fetch(ctx, src, "acme", "7", "img/a.png")
	if err != nil || !stored {
		t.Fatalf("Fetch() = %v, %v, want a download", stored, err)
	}
	stored, err = s.Fetch(ctx, src, "acme", "7", "img/a.png")
	if err != nil || stored {
		t.Fatalf("Fetch() replay = %v, %v, want a skip", stored, err)
	}
	if src.count() != 1 {
		t.Errorf("downloads = %d, want 1", src.count())
	}

	stored, err = s.Fetch(ctx, src, "acme", "7", "img/b.png")
	if err != nil || !stored {
		t.Fatalf("Fetch() new path = %v, %v", stored, err)
	}
	asset, err := s.Stat(ctx, "acme", "7")
	if err != nil || asset.Path != "img/b.png" {
		t.Errorf("Stat() = %+v, %v", asset, err)
	}
}

func TestStore_FetchPropagatesSourceErrors(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, 0)
	src := &mockAssetSource{downloadFunc: func(context.Context, string) ([]byte, error) {
		return nil, &source.TransientSourceError{Op: "GET images", StatusCode: 503}
	}}

	_, err := s.Fetch(context.Background(), src, "acme", "7", "img/a.png")
	if source.Kind(err) != source.KindTransient {
		t.Fatalf("Fetch() error = %v, want a transient error", err)
	}
	if _, err := s.Stat(context.Background(), "acme", "7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("a failed download must not store anything, Stat() error = %v", err)
	}
}

func TestStore_Closed(t *testing.T) {
	t.Parallel()
	s, err := Open(config.AssetsConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.List(context.Background(), "acme"); !errors.Is(err, ErrClosed) {
		t.Errorf("List() after Close error = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
