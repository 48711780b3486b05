package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

// GetMirrorFile returns the mirror location of sha1 or ErrNotFound.
func GetMirrorFile(ctx context.Context, db *gorm.DB, sha1 string) (*domain.MirrorFile, error) {
	return take[domain.MirrorFile](ctx, db, "sha1 = ?", sha1)
}

// UpsertMirrorFiles records mirror locations. The ingestion pipeline owns
// this table; the mirror itself only reads it.
func UpsertMirrorFiles(ctx context.Context, db *gorm.DB, files []domain.MirrorFile) error {
	if len(files) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sha1"}}, UpdateAll: true}).
		CreateInBatches(&files, batchSize).Error
}

// ListMirrorFiles returns up to limit files ordered by (mtime, sha1) strictly
// after the given cursor. A zero afterMTime with empty afterSHA1 starts from
// the beginning.
func ListMirrorFiles(ctx context.Context, db *gorm.DB, afterMTime time.Time, afterSHA1 string, limit int) ([]domain.MirrorFile, error) {
	q := db.WithContext(ctx).Model(&domain.MirrorFile{})
	if !afterMTime.IsZero() || afterSHA1 != "" {
		q = q.Where("mtime > ? OR (mtime = ? AND sha1 > ?)", afterMTime, afterMTime, afterSHA1)
	}
	out := []domain.MirrorFile{}
	err := q.Order("mtime ASC").Order("sha1 ASC").Limit(limit).Find(&out).Error
	return out, err
}
