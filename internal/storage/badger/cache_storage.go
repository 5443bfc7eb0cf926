package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage implements the store-backed dashboard cache
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CacheStorage) Get(ctx context.Context, key string) (*models.DashboardCacheEntry, error) {
	var entry models.DashboardCacheEntry
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return &entry, nil
}

func (s *CacheStorage) Put(ctx context.Context, entry *models.DashboardCacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if err := s.db.Store().Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", entry.Key, err)
	}
	return nil
}

func (s *CacheStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.Store().Delete(key, &models.DashboardCacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}
