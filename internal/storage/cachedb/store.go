// Package cachedb implements interfaces.CacheStore using BadgerHold.
package cachedb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/models"
)

// Store implements interfaces.CacheStore using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
	mu     sync.Mutex
}

// NewStore creates a new CacheStore backed by BadgerHold.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache db path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Cache store opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Get(_ context.Context, cacheID string) (*models.Cache, error) {
	var cache models.Cache
	if err := s.db.Get(cacheID, &cache); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("cache '%s': %w", cacheID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cache '%s': %w", cacheID, err)
	}
	return &cache, nil
}

func (s *Store) List(_ context.Context) ([]*models.Cache, error) {
	var caches []models.Cache
	if err := s.db.Find(&caches, nil); err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	out := make([]*models.Cache, len(caches))
	for i := range caches {
		out[i] = &caches[i]
	}
	return out, nil
}

func (s *Store) Save(_ context.Context, cache *models.Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var existing models.Cache
	if err := s.db.Get(cache.CacheID, &existing); err == nil {
		cache.CreatedAt = existing.CreatedAt
	} else if cache.CreatedAt.IsZero() {
		cache.CreatedAt = now
	}
	cache.ModifiedAt = now

	if err := s.db.Upsert(cache.CacheID, cache); err != nil {
		return fmt.Errorf("failed to save cache '%s': %w", cache.CacheID, err)
	}
	return nil
}

func (s *Store) IncrementFound(ctx context.Context, cacheID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.Get(ctx, cacheID)
	if err != nil {
		return err
	}
	cache.Found++
	cache.ModifiedAt = time.Now()

	if err := s.db.Upsert(cache.CacheID, cache); err != nil {
		return fmt.Errorf("failed to update cache '%s': %w", cacheID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
