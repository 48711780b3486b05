package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-mod-mirror/internal/mirror"
	"github.com/tbourn/go-mod-mirror/internal/utils"
)

// Inventory page sizes.
const (
	DefaultInventoryLimit = 100
	MaxInventoryLimit     = 1000
)

// InventoryService enumerates the mirror delivery tier.
type InventoryService struct {
	Index mirror.Index
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(idx mirror.Index) *InventoryService {
	return &InventoryService{Index: idx}
}

// List returns the page after cursor. limit is clamped to
// [1, MaxInventoryLimit].
func (s *InventoryService) List(ctx context.Context, cursor string, limit int) (mirror.Page, error) {
	limit = utils.ClampLimit(limit, DefaultInventoryLimit, MaxInventoryLimit)
	page, err := s.Index.List(ctx, cursor, limit)
	if errors.Is(err, utils.ErrBadCursor) {
		return mirror.Page{}, fmt.Errorf("%w: %q", ErrBadCursor, cursor)
	}
	if err != nil {
		return mirror.Page{}, err
	}
	page.Files = orEmpty(page.Files)
	return page, nil
}
