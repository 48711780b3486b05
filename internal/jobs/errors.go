package jobs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned when the in-process queue has no room.
	ErrQueueFull = errors.New("jobs: queue full")
	// ErrClosed is returned by Submit after the dispatcher stopped.
	ErrClosed = errors.New("jobs: dispatcher closed")
	// ErrRateLimited matches any *RateLimitedError.
	ErrRateLimited = errors.New("jobs: rate limited")
)

// RateLimitedError postpones a job until the upstream window has room.
// It is never surfaced to HTTP callers.
type RateLimitedError struct {
	Upstream string
	RetryIn  time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry in %s", e.Upstream, e.RetryIn)
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// Retryable reports whether a handler error is transient. Errors opt in by
// implementing Temporary() bool, as upstream.UnavailableError does.
func Retryable(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

// retryHint returns the delay a handler error asks for. Errors opt in by
// implementing RetryAfterHint() time.Duration.
func retryHint(err error) time.Duration {
	var h interface{ RetryAfterHint() time.Duration }
	if errors.As(err, &h) {
		return h.RetryAfterHint()
	}
	return 0
}
