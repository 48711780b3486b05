// Package mirror resolves file hashes to locations on the mirror delivery
// tier and enumerates the mirror inventory. The inventory is populated by an
// external ingestion pipeline; this package only reads it.
package mirror

import (
	"context"
	"errors"

	"github.com/tbourn/go-mod-mirror/internal/domain"
)

// ErrNotFound is returned when no mirror copy exists for a hash.
var ErrNotFound = errors.New("mirror: file not found")

// Page is one slice of the inventory. Next is empty on the last page.
type Page struct {
	Files []domain.MirrorFile `json:"files"`
	Next  string              `json:"next,omitempty"`
}

// Index is a hash-indexed mirror inventory.
type Index interface {
	// Lookup returns the delivery URL of the mirror copy of sha1.
	Lookup(ctx context.Context, sha1 string) (string, error)
	// List returns up to limit files after the opaque cursor.
	List(ctx context.Context, cursor string, limit int) (Page, error)
}
