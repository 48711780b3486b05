// Package repo implements the data persistence layer for mirrored entities,
// backed by GORM. This file provides the SQL-backed key-value rows used when
// the mirror runs without Redis.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

// GetCacheEntry returns a non-expired entry or ErrNotFound.
func GetCacheEntry(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.CacheEntry, error) {
	var rec domain.CacheEntry
	err := db.WithContext(ctx).
		Where("key = ? AND (expires_at IS NULL OR expires_at > ?)", key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutCacheEntry inserts or overwrites the entry for key.
func PutCacheEntry(ctx context.Context, db *gorm.DB, key string, value []byte, expiresAt *time.Time) error {
	rec := domain.CacheEntry{Key: key, Value: value, ExpiresAt: expiresAt, CreatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "created_at"}),
	}).Create(&rec).Error
}

// CreateCacheEntry inserts the entry only if no live entry exists for key and
// returns ErrDuplicate otherwise. An expired entry is replaced.
func CreateCacheEntry(ctx context.Context, db *gorm.DB, key string, value []byte, expiresAt *time.Time, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ? AND expires_at IS NOT NULL AND expires_at <= ?", key, now).
			Delete(&domain.CacheEntry{}).Error; err != nil {
			return err
		}
		rec := domain.CacheEntry{Key: key, Value: value, ExpiresAt: expiresAt, CreatedAt: now}
		if err := tx.Create(&rec).Error; err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

// DeleteCacheEntry removes key. Deleting a missing key is not an error.
func DeleteCacheEntry(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("key = ?", key).Delete(&domain.CacheEntry{}).Error
}

// PurgeExpiredCacheEntries deletes every entry expired at now and reports how
// many rows were removed.
func PurgeExpiredCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&domain.CacheEntry{})
	return res.RowsAffected, res.Error
}
