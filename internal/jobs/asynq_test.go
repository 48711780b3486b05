package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-mod-mirror/internal/kv"
)

func newWorker(t *testing.T, h Handler, lim Limiter) (*Worker, *Deduper) {
	t.Helper()
	dd := NewDeduper(kv.NewMemory(), time.Minute)
	return NewWorker(h, dd, lim, zerolog.Nop()), dd
}

func taskFor(t *testing.T, job RefreshJob) *asynq.Task {
	t.Helper()
	task, err := NewTask(job, AsynqOptions{MaxRetry: 3, Timeout: time.Minute})
	require.NoError(t, err)
	return task
}

func TestNewTask_TypeAndPayload(t *testing.T) {
	job := NewJob(KindMRHashes, []string{"h"}, map[string]string{ParamAlgorithm: "sha1"})
	task := taskFor(t, job)
	assert.Equal(t, "modrinth:hashes", task.Type())

	got, err := decodeTask(task)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestWorker_SuccessReleasesKey(t *testing.T) {
	job := NewJob(KindCFMods, []string{"30001"}, nil)
	w, dd := newWorker(t, HandlerFunc(func(context.Context, RefreshJob) error { return nil }), nil)
	ctx := context.Background()
	ok, _ := dd.Acquire(ctx, job.Key())
	require.True(t, ok)

	require.NoError(t, w.ProcessTask(ctx, taskFor(t, job)))
	ok, _ = dd.Acquire(ctx, job.Key())
	assert.True(t, ok, "key released after success")
}

func TestWorker_RetryableErrorReturned(t *testing.T) {
	job := NewJob(KindCFMods, []string{"30001"}, nil)
	w, dd := newWorker(t, HandlerFunc(func(context.Context, RefreshJob) error { return tempErr{} }), nil)
	ctx := context.Background()
	_, _ = dd.Acquire(ctx, job.Key())

	err := w.ProcessTask(ctx, taskFor(t, job))
	assert.Error(t, err)
	assert.True(t, IsFailure(err))
	ok, _ := dd.Acquire(ctx, job.Key())
	assert.False(t, ok, "key held while retries remain")
}

func TestWorker_PermanentErrorDropped(t *testing.T) {
	job := NewJob(KindCFMods, []string{"30001"}, nil)
	w, _ := newWorker(t, HandlerFunc(func(context.Context, RefreshJob) error { return errors.New("boom") }), nil)
	assert.NoError(t, w.ProcessTask(context.Background(), taskFor(t, job)))
}

func TestWorker_BadPayloadSkipsRetry(t *testing.T) {
	w, _ := newWorker(t, HandlerFunc(func(context.Context, RefreshJob) error { return nil }), nil)
	err := w.ProcessTask(context.Background(), asynq.NewTask("curseforge:mods", []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorker_RateLimitedPostponed(t *testing.T) {
	lim := &stepLimiter{waits: []time.Duration{3 * time.Second}}
	called := false
	w, _ := newWorker(t, HandlerFunc(func(context.Context, RefreshJob) error { called = true; return nil }), lim)
	task := taskFor(t, NewJob(KindMRVersions, []string{"v"}, nil))

	err := w.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, called)
	assert.False(t, IsFailure(err), "postponement must not count as a failure")
	assert.Equal(t, 3*time.Second, RetryDelay(1, err, task))
	assert.Greater(t, RetryDelay(1, errors.New("x"), task), time.Duration(0))
}

type hintedErr struct{ after time.Duration }

func (e hintedErr) Error() string                 { return "busy" }
func (e hintedErr) Temporary() bool               { return true }
func (e hintedErr) RetryAfterHint() time.Duration { return e.after }

func TestRetryDelay_HonorsRetryAfterHint(t *testing.T) {
	task := taskFor(t, NewJob(KindMRVersions, []string{"v"}, nil))
	err := fmt.Errorf("refresh: %w", hintedErr{after: 42 * time.Second})
	assert.Equal(t, 42*time.Second, RetryDelay(1, err, task))
	assert.NotEqual(t, 42*time.Second, RetryDelay(1, hintedErr{}, task))
}

func TestWorker_HandleErrorReleasesOnSkipRetry(t *testing.T) {
	job := NewJob(KindMRVersions, []string{"v"}, nil)
	w, dd := newWorker(t, HandlerFunc(func(context.Context, RefreshJob) error { return nil }), nil)
	ctx := context.Background()
	_, _ = dd.Acquire(ctx, job.Key())

	w.HandleError(ctx, taskFor(t, job), &RateLimitedError{Upstream: "modrinth", RetryIn: time.Second})
	ok, _ := dd.Acquire(ctx, job.Key())
	assert.False(t, ok, "postponed job keeps its key")

	w.HandleError(ctx, taskFor(t, job), asynq.SkipRetry)
	ok, _ = dd.Acquire(ctx, job.Key())
	assert.True(t, ok)
}
