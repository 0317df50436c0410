// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldsync/internal/config"
	"github.com/tomtom215/fieldsync/internal/logging"
	"github.com/tomtom215/fieldsync/internal/metrics"
	"github.com/tomtom215/fieldsync/internal/provider"
	"github.com/tomtom215/fieldsync/internal/source"
)

// DefaultMaxBytes caps a single image when the config leaves it unset.
const DefaultMaxBytes = 10 << 20

const gcRatio = 0.5

var (
	// ErrNotFound is returned when no asset is stored for a key.
	ErrNotFound = errors.New("asset not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("asset store is closed")
)

const (
	prefixMeta = "meta:"
	prefixBlob = "blob:"
)

// Asset is the metadata of one stored image.
type Asset struct {
	TenantID    string    `json:"tenantId"`
	CategoryID  string    `json:"categoryId"`
	Path        string    `json:"path"`
	URLHash     string    `json:"urlHash"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"storedAt"`
}

// Stats reports store contents.
type Stats struct {
	Assets int64 `json:"assets"`
	Bytes  int64 `json:"bytes"`
}

// Store is a Badger-backed image store.
type Store struct {
	db       *badger.DB
	maxBytes int64
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens the store described by cfg.
func Open(cfg config.AssetsConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if cfg.Path == "" {
		return nil, fmt.Errorf("assets path is required unless in_memory is set")
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Int64("max_bytes", maxBytes).
		Msg("asset store opened")
	return &Store{db: db, maxBytes: maxBytes, now: time.Now}, nil
}

// URLHash returns the dedupe hash of a source image path.
func URLHash(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

func metaKey(tenantID, categoryID string) []byte {
	return []byte(prefixMeta + tenantID + ":" + categoryID)
}

func blobKey(tenantID, categoryID string) []byte {
	return []byte(prefixBlob + tenantID + ":" + categoryID)
}

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Put stores data as the image of a category, replacing any previous one.
func (s *Store) Put(ctx context.Context, tenantID, categoryID, path string, data []byte) (Asset, error) {
	if err := s.check(); err != nil {
		return Asset{}, err
	}
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	if tenantID == "" || categoryID == "" {
		return Asset{}, source.NewValidationError("key", "tenant and category are required")
	}
	if int64(len(data)) > s.maxBytes {
		return Asset{}, source.NewValidationError("size", "image is %d bytes, limit is %d", len(data), s.maxBytes)
	}

	asset := Asset{
		TenantID:    tenantID,
		CategoryID:  categoryID,
		Path:        path,
		URLHash:     URLHash(path),
		ContentType: http.DetectContentType(data),
		Size:        int64(len(data)),
		StoredAt:    s.now().UTC(),
	}
	meta, err := json.Marshal(asset)
	if err != nil {
		return Asset{}, fmt.Errorf("marshal asset: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blobKey(tenantID, categoryID), data); err != nil {
			return err
		}
		return txn.Set(metaKey(tenantID, categoryID), meta)
	})
	if err != nil {
		return Asset{}, fmt.Errorf("write asset: %w", err)
	}
	return asset, nil
}

// Stat returns the metadata of a stored image.
func (s *Store) Stat(ctx context.Context, tenantID, categoryID string) (Asset, error) {
	if err := s.check(); err != nil {
		return Asset{}, err
	}
	var asset Asset
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(tenantID, categoryID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &asset)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Asset{}, ErrNotFound
	}
	if err != nil {
		return Asset{}, fmt.Errorf("read asset: %w", err)
	}
	return asset, nil
}

// Get returns the metadata and bytes of a stored image.
func (s *Store) Get(ctx context.Context, tenantID, categoryID string) (Asset, []byte, error) {
	asset, err := s.Stat(ctx, tenantID, categoryID)
	if err != nil {
		return Asset{}, nil, err
	}
	var data []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(tenantID, categoryID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Asset{}, nil, ErrNotFound
	}
	if err != nil {
		return Asset{}, nil, fmt.Errorf("read asset data: %w", err)
	}
	return asset, data, nil
}

// List returns the metadata of every image stored for a tenant.
func (s *Store) List(ctx context.Context, tenantID string) ([]Asset, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]Asset, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixMeta + tenantID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var asset Asset
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &asset)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping unreadable asset metadata")
				continue
			}
			out = append(out, asset)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return out, nil
}

// Delete removes the image of a category. Deleting a missing image is not
// an error.
func (s *Store) Delete(ctx context.Context, tenantID, categoryID string) error {
	if err := s.check(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(metaKey(tenantID, categoryID)); err != nil {
			return err
		}
		return txn.Delete(blobKey(tenantID, categoryID))
	})
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// Fetch downloads the image at path unless the category already holds an
// image from the same path. It reports whether a download happened.
func (s *Store) Fetch(ctx context.Context, src provider.AssetSource, tenantID, categoryID, path string) (bool, error) {
	logger := logging.Ctx(ctx)

	existing, err := s.Stat(ctx, tenantID, categoryID)
	switch {
	case err == nil && existing.URLHash == URLHash(path):
		metrics.RecordAsset("skipped")
		logger.Debug().Str("category_id", categoryID).Msg("image unchanged, skipping download")
		return false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		metrics.RecordAsset("error")
		return false, err
	}

	data, err := src.Download(ctx, path)
	if err != nil {
		metrics.RecordAsset("error")
		return false, fmt.Errorf("failed to download image %s: %w", path, err)
	}
	asset, err := s.Put(ctx, tenantID, categoryID, path, data)
	if err != nil {
		metrics.RecordAsset("error")
		return false, err
	}
	metrics.RecordAsset("stored")
	logger.Info().
		Str("category_id", categoryID).
		Str("content_type", asset.ContentType).
		Int64("size", asset.Size).
		Msg("stored category image")
	return true, nil
}

// Stats counts stored images and their bytes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := s.check(); err != nil {
		return Stats{}, err
	}
	var st Stats
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixMeta)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var asset Asset
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &asset)
			}); err != nil {
				continue
			}
			st.Assets++
			st.Bytes += asset.Size
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("scan assets: %w", err)
	}
	return st, nil
}

// RunGC reclaims value-log space left by replaced and deleted images.
func (s *Store) RunGC() error {
	if err := s.check(); err != nil {
		return err
	}
	for {
		err := s.db.RunValueLogGC(gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
