package mirror

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/repo"
	"github.com/tbourn/go-mod-mirror/internal/utils"
)

// SQLIndex reads the mirror_files table. Delivery URLs are BaseURL joined
// with the stored path.
type SQLIndex struct {
	DB      *gorm.DB
	BaseURL string
}

// NewSQLIndex constructs a SQLIndex.
func NewSQLIndex(db *gorm.DB, baseURL string) *SQLIndex {
	return &SQLIndex{DB: db, BaseURL: strings.TrimRight(baseURL, "/")}
}

type sqlCursor struct {
	MTime time.Time `json:"t"`
	SHA1  string    `json:"h"`
}

// Lookup implements Index.
func (s *SQLIndex) Lookup(ctx context.Context, sha1 string) (string, error) {
	f, err := repo.GetMirrorFile(ctx, s.DB, sha1)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return s.BaseURL + "/" + strings.TrimLeft(f.Path, "/"), nil
}

// List implements Index with a (mtime, sha1) keyset cursor, so files added
// while a client paginates are neither skipped nor repeated.
func (s *SQLIndex) List(ctx context.Context, cursor string, limit int) (Page, error) {
	var c sqlCursor
	if err := utils.DecodeCursor(cursor, &c); err != nil {
		return Page{}, err
	}
	files, err := repo.ListMirrorFiles(ctx, s.DB, c.MTime, c.SHA1, limit)
	if err != nil {
		return Page{}, err
	}
	page := Page{Files: files}
	if len(files) == limit && limit > 0 {
		last := files[len(files)-1]
		if page.Next, err = utils.EncodeCursor(sqlCursor{MTime: last.MTime, SHA1: last.SHA1}); err != nil {
			return Page{}, err
		}
	}
	return page, nil
}
