package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mod-mirror/internal/config"
	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/repo"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var testTTL = config.TTLConfig{
	CFMod:     time.Hour,
	CFFile:    time.Hour,
	MRProject: time.Hour,
	MRVersion: time.Hour,
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

// recorder is a Dispatcher that only remembers what it was given.
type recorder struct {
	mu   sync.Mutex
	jobs []jobs.RefreshJob
	err  error
}

func (r *recorder) Submit(_ context.Context, j jobs.RefreshJob) (jobs.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return jobs.Handle{}, r.err
	}
	r.jobs = append(r.jobs, j)
	return jobs.Handle{Key: j.Key(), Enqueued: true}, nil
}

func (r *recorder) submitted() []jobs.RefreshJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.RefreshJob(nil), r.jobs...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.jobs = nil
	r.mu.Unlock()
}

func found(at time.Time) domain.SyncMeta    { return domain.SyncMeta{Found: true, SyncedAt: at} }
func negative(at time.Time) domain.SyncMeta { return domain.SyncMeta{Found: false, SyncedAt: at} }

func clock() time.Time { return fixedNow }

func nop() zerolog.Logger { return zerolog.Nop() }
