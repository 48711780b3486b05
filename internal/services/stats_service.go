package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/repo"
)

// StatsService reports the size of the entity store.
type StatsService struct {
	DB *gorm.DB
}

// Stats returns row counts per entity kind.
func (s *StatsService) Stats(ctx context.Context) ([]repo.KindStats, error) {
	return repo.EntityStats(ctx, s.DB)
}
