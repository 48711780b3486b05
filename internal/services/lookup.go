package services

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-mod-mirror/internal/domain"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/repo"
)

// Result answers a point lookup. Item is nil unless the record was found.
// Accepted is set when a forced refresh was submitted instead of reading.
type Result[E any] struct {
	Item      *E
	Status    domain.Status
	Trustable bool
	Accepted  bool
}

// Results answers a batch lookup.
type Results[E any] struct {
	Items     []E
	Trustable bool
	Accepted  bool
}

// Listing answers a lookup of the children of one parent entity.
type Listing[E any] struct {
	Items     []E
	Total     int64
	Status    domain.Status
	Trustable bool
	Accepted  bool
}

// Searcher runs a passthrough search against an origin API.
type Searcher interface {
	Search(ctx context.Context, query url.Values) ([]byte, error)
}

// scheduler submits refresh jobs on behalf of a service. Failures never fail
// the lookup; the record simply stays stale until the next request.
type scheduler struct {
	dispatcher jobs.Dispatcher
	now        func() time.Time
	log        zerolog.Logger
}

func (s scheduler) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s scheduler) submit(ctx context.Context, job jobs.RefreshJob) {
	if s.dispatcher == nil || len(job.Targets) == 0 {
		return
	}
	h, err := s.dispatcher.Submit(context.WithoutCancel(ctx), job)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(job.Kind)).Int("targets", len(job.Targets)).Msg("refresh submit failed")
		return
	}
	s.log.Debug().Str("key", h.Key).Bool("enqueued", h.Enqueued).Msg("refresh submitted")
}

// point classifies a single stored record and schedules job when it is
// absent or stale.
func point[E domain.Synced](ctx context.Context, s scheduler, job jobs.RefreshJob, force bool, ttl time.Duration, load func() (*E, error)) (Result[E], error) {
	if force {
		s.submit(ctx, job)
		return Result[E]{Accepted: true}, nil
	}
	rec, err := load()
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return Result[E]{}, err
	}
	var meta *domain.SyncMeta
	if rec != nil {
		m := (*rec).Sync()
		meta = &m
	}
	res := Result[E]{Status: domain.Classify(meta, ttl, s.clock())}
	switch res.Status {
	case domain.StatusFresh:
		res.Item, res.Trustable = rec, true
	case domain.StatusStale:
		res.Item = rec
		s.submit(ctx, job)
	case domain.StatusNegative:
		res.Trustable = true
	default:
		s.submit(ctx, job)
	}
	return res, nil
}
