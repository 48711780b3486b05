package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// AsynqOptions configures the asynq producer side.
type AsynqOptions struct {
	MaxRetry int
	Timeout  time.Duration
}

// AsynqDispatcher enqueues jobs on Redis through asynq. Each upstream gets
// its own queue so a saturated origin does not starve the other.
type AsynqDispatcher struct {
	client *asynq.Client
	dedup  *Deduper
	opts   AsynqOptions
	sf     singleflight.Group
}

// NewAsynqDispatcher returns a producer. The caller owns client.
func NewAsynqDispatcher(client *asynq.Client, dedup *Deduper, o AsynqOptions) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, dedup: dedup, opts: o}
}

// NewTask encodes job as an asynq task routed to its upstream queue.
func NewTask(job RefreshJob, o AsynqOptions) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(job.Kind.Upstream()),
		asynq.MaxRetry(o.MaxRetry),
	}
	if o.Timeout > 0 {
		opts = append(opts, asynq.Timeout(o.Timeout))
	}
	return asynq.NewTask(string(job.Kind), payload, opts...), nil
}

// Submit implements Dispatcher.
func (d *AsynqDispatcher) Submit(ctx context.Context, job RefreshJob) (Handle, error) {
	key := job.Key()
	v, err, _ := d.sf.Do(key, func() (any, error) {
		ok, err := d.dedup.Acquire(ctx, key)
		if err != nil || !ok {
			return false, err
		}
		task, err := NewTask(job, d.opts)
		if err == nil {
			_, err = d.client.EnqueueContext(ctx, task)
		}
		if err != nil {
			_ = d.dedup.Release(context.WithoutCancel(ctx), key)
			return false, fmt.Errorf("enqueue %s: %w", job.Kind, err)
		}
		return true, nil
	})
	h := Handle{Key: key}
	if err == nil {
		h.Enqueued = v.(bool)
	}
	countSubmit(job.Kind, h, err)
	return h, err
}

// Worker adapts a Handler to asynq. Rate-limited tasks are postponed
// without consuming a retry; permanent failures are dropped.
type Worker struct {
	handler Handler
	dedup   *Deduper
	limiter Limiter
	log     zerolog.Logger
}

// NewWorker returns a Worker. limiter may be nil.
func NewWorker(h Handler, dedup *Deduper, limiter Limiter, log zerolog.Logger) *Worker {
	if limiter == nil {
		limiter = NewLocalLimiter(nil)
	}
	return &Worker{handler: h, dedup: dedup, limiter: limiter, log: log.With().Str("component", "worker").Logger()}
}

func decodeTask(t *asynq.Task) (RefreshJob, error) {
	var job RefreshJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return job, err
	}
	if job.Kind == "" {
		job.Kind = Kind(t.Type())
	}
	return job, nil
}

// ProcessTask implements asynq.Handler.
func (w *Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	job, err := decodeTask(t)
	if err != nil {
		w.log.Error().Err(err).Str("type", t.Type()).Msg("bad payload (dropping job)")
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	log := w.log.With().Str("kind", string(job.Kind)).Int("targets", len(job.Targets)).Logger()

	up := job.Kind.Upstream()
	if wait, err := w.limiter.Allow(ctx, up); err != nil {
		log.Warn().Err(err).Msg("rate limiter unavailable")
	} else if wait > 0 {
		jobsDelayed.WithLabelValues(up).Inc()
		return &RateLimitedError{Upstream: up, RetryIn: wait}
	}

	err = w.handler.Run(ctx, job)
	switch {
	case err == nil:
		jobsFinished.WithLabelValues(string(job.Kind), "ok").Inc()
		w.release(ctx, job)
		return nil
	case Retryable(err):
		log.Debug().Err(err).Msg("retryable error")
		return err
	default:
		jobsFinished.WithLabelValues(string(job.Kind), "dropped").Inc()
		log.Warn().Err(err).Msg("permanent error (dropping job)")
		w.release(ctx, job)
		return nil
	}
}

// IsFailure keeps rate-limit postponements out of the retry count.
func IsFailure(err error) bool {
	return !errors.Is(err, ErrRateLimited)
}

// RetryDelay waits out the limiter window for postponed tasks, honors an
// upstream Retry-After hint, and falls back to asynq's exponential delay.
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) && rl.RetryIn > 0 {
		return rl.RetryIn
	}
	if d := retryHint(err); d > 0 {
		return d
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}

// HandleError releases the dedup marker once a task will not run again.
func (w *Worker) HandleError(ctx context.Context, t *asynq.Task, err error) {
	if errors.Is(err, ErrRateLimited) {
		return
	}
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry && !errors.Is(err, asynq.SkipRetry) {
		return
	}
	job, derr := decodeTask(t)
	if derr != nil {
		return
	}
	jobsFinished.WithLabelValues(string(job.Kind), "dropped").Inc()
	w.log.Warn().Err(err).Str("kind", string(job.Kind)).Int("retried", retried).Msg("refresh dropped after retries")
	w.release(ctx, job)
}

func (w *Worker) release(ctx context.Context, job RefreshJob) {
	if w.dedup == nil {
		return
	}
	if err := w.dedup.Release(context.WithoutCancel(ctx), job.Key()); err != nil {
		w.log.Warn().Err(err).Msg("release dedup key")
	}
}

// ServerOptions configures the asynq consumer side.
type ServerOptions struct {
	Concurrency     int
	ShutdownTimeout time.Duration
}

// NewAsynqServer builds an asynq server consuming both upstream queues with
// w's failure policy, and a mux routing every job kind to w.
func NewAsynqServer(redisOpt asynq.RedisConnOpt, w *Worker, o ServerOptions) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: o.Concurrency,
		Queues: map[string]int{
			"curseforge": 5,
			"modrinth":   5,
		},
		IsFailure:       IsFailure,
		RetryDelayFunc:  RetryDelay,
		ErrorHandler:    asynq.ErrorHandlerFunc(w.HandleError),
		Logger:          asynqLogger{w.log},
		ShutdownTimeout: o.ShutdownTimeout,
	})
	mux := asynq.NewServeMux()
	for _, k := range AllKinds() {
		mux.Handle(string(k), w)
	}
	return srv, mux
}

// AllKinds lists every job kind.
func AllKinds() []Kind {
	return []Kind{
		KindCFMods, KindCFModFiles, KindCFFiles, KindCFFingerprints,
		KindMRProjects, KindMRProjectVersions, KindMRVersions, KindMRHashes,
	}
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
