package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// MemoryOptions configures a MemoryDispatcher.
type MemoryOptions struct {
	Workers   int
	QueueSize int
	// MaxRetry is the number of retries after the first attempt for
	// retryable failures.
	MaxRetry int
	Deduper  *Deduper
	Limiter  Limiter
	BackOff  func() backoff.BackOff
	Logger   zerolog.Logger
}

// MemoryDispatcher runs jobs on an in-process worker pool fed by a bounded
// channel. Dedup still goes through the Deduper, so several API processes
// sharing a Redis-backed store do not duplicate work.
type MemoryDispatcher struct {
	opts   MemoryOptions
	queue  chan RefreshJob
	sf     singleflight.Group
	closed atomic.Bool
	log    zerolog.Logger
}

// NewMemoryDispatcher returns a dispatcher; call Run to start its workers.
func NewMemoryDispatcher(o MemoryOptions) *MemoryDispatcher {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1
	}
	if o.Limiter == nil {
		o.Limiter = NewLocalLimiter(nil)
	}
	if o.BackOff == nil {
		o.BackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return &MemoryDispatcher{
		opts:  o,
		queue: make(chan RefreshJob, o.QueueSize),
		log:   o.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Submit implements Dispatcher. Concurrent submits of one key in this
// process share a single dedup round-trip.
func (d *MemoryDispatcher) Submit(ctx context.Context, job RefreshJob) (Handle, error) {
	key := job.Key()
	if d.closed.Load() {
		return Handle{Key: key}, ErrClosed
	}
	v, err, _ := d.sf.Do(key, func() (any, error) {
		if d.opts.Deduper != nil {
			ok, err := d.opts.Deduper.Acquire(ctx, key)
			if err != nil || !ok {
				return false, err
			}
		}
		select {
		case d.queue <- job:
			return true, nil
		default:
			d.release(ctx, key)
			return false, ErrQueueFull
		}
	})
	h := Handle{Key: key}
	if err == nil {
		h.Enqueued = v.(bool)
	}
	countSubmit(job.Kind, h, err)
	return h, err
}

// Run starts the workers and blocks until ctx is cancelled. Queued jobs that
// have not started are abandoned; their dedup markers expire on their own.
func (d *MemoryDispatcher) Run(ctx context.Context, h Handler) error {
	defer d.closed.Store(true)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-d.queue:
					d.execute(ctx, h, job)
				}
			}
		})
	}
	return g.Wait()
}

func (d *MemoryDispatcher) execute(ctx context.Context, h Handler, job RefreshJob) {
	key := job.Key()
	defer d.release(ctx, key)
	log := d.log.With().Str("kind", string(job.Kind)).Int("targets", len(job.Targets)).Logger()
	start := time.Now()

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		if err := d.waitTurn(ctx, job.Kind.Upstream()); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := h.Run(ctx, job)
		if err != nil && !Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("refresh attempt failed")
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(d.opts.BackOff()),
		backoff.WithMaxTries(uint(d.opts.MaxRetry+1)),
	)
	if err != nil {
		jobsFinished.WithLabelValues(string(job.Kind), "dropped").Inc()
		log.Warn().Err(err).Int("attempts", attempt).Msg("refresh dropped")
		return
	}
	jobsFinished.WithLabelValues(string(job.Kind), "ok").Inc()
	log.Debug().Dur("took", time.Since(start)).Msg("refresh done")
}

// waitTurn blocks until the upstream window has room. A limiter backend
// error lets the job through.
func (d *MemoryDispatcher) waitTurn(ctx context.Context, upstream string) error {
	for {
		wait, err := d.opts.Limiter.Allow(ctx, upstream)
		if err != nil {
			d.log.Warn().Err(err).Str("upstream", upstream).Msg("rate limiter unavailable")
			return nil
		}
		if wait <= 0 {
			return nil
		}
		jobsDelayed.WithLabelValues(upstream).Inc()
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (d *MemoryDispatcher) release(ctx context.Context, key string) {
	if d.opts.Deduper == nil {
		return
	}
	if err := d.opts.Deduper.Release(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Warn().Err(err).Str("key", key).Msg("release dedup key")
	}
}
