package upstream

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrNotFound is an authoritative "does not exist" from an origin API.
	ErrNotFound = errors.New("upstream: not found")
	// ErrMalformed marks a payload that cannot be normalized into an entity.
	ErrMalformed = errors.New("upstream: malformed payload")
)

// UnavailableError is a transient failure: network error, 429 or 5xx.
// Callers may retry it.
type UnavailableError struct {
	Upstream   string
	Status     int // 0 for transport errors
	RetryAfter time.Duration
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s unavailable: %v", e.Upstream, e.Err)
	}
	return fmt.Sprintf("%s unavailable: status %d", e.Upstream, e.Status)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Temporary reports that the failure is worth retrying.
func (e *UnavailableError) Temporary() bool { return true }

// RetryAfterHint is the delay the origin asked for, zero when it sent none.
func (e *UnavailableError) RetryAfterHint() time.Duration { return e.RetryAfter }

// As lets backoff.Retry wait out a Retry-After hint instead of its own
// schedule.
func (e *UnavailableError) As(target any) bool {
	t, ok := target.(**backoff.RetryAfterError)
	if !ok || e.RetryAfter <= 0 {
		return false
	}
	*t = &backoff.RetryAfterError{Duration: e.RetryAfter}
	return true
}

// ResponseError is a non-retryable 4xx other than 404.
type ResponseError struct {
	Upstream string
	Status   int
	Body     string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s rejected request: status %d: %s", e.Upstream, e.Status, e.Body)
}

// IsTemporary reports whether err is (or wraps) a retryable upstream failure.
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
