package kv

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/repo"
)

// SQL is a Store backed by the cache_entries table. It lets a single-node
// deployment persist memoized responses without Redis.
type SQL struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQL returns a Store over db. The cache_entries table must be migrated.
func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQL) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := s.now().Add(ttl)
	return &at
}

// Get implements Store.
func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	rec, err := repo.GetCacheEntry(ctx, s.db, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

// Set implements Store.
func (s *SQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return repo.PutCacheEntry(ctx, s.db, key, value, s.expiry(ttl))
}

// SetNX implements Store.
func (s *SQL) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	err := repo.CreateCacheEntry(ctx, s.db, key, value, s.expiry(ttl), s.now())
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

// Del implements Store.
func (s *SQL) Del(ctx context.Context, key string) error {
	return repo.DeleteCacheEntry(ctx, s.db, key)
}

// Purge removes expired rows and returns how many were deleted.
func (s *SQL) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredCacheEntries(ctx, s.db, s.now())
}
