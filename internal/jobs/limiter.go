package jobs

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Rate is a sliding-window budget: at most Limit executions per Window.
type Rate struct {
	Limit  int
	Window time.Duration
}

// Limiter gates job execution per upstream. Allow consumes one slot and
// returns 0, or returns how long to wait before asking again.
type Limiter interface {
	Allow(ctx context.Context, upstream string) (time.Duration, error)
}

// LocalLimiter is a process-local Limiter built on token buckets refilled at
// Limit/Window. Upstreams without a configured Rate are unlimited.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

// NewLocalLimiter returns a LocalLimiter for the given per-upstream rates.
func NewLocalLimiter(rates map[string]Rate) *LocalLimiter {
	l := &LocalLimiter{buckets: make(map[string]*rate.Limiter, len(rates)), now: time.Now}
	for up, r := range rates {
		if r.Limit <= 0 || r.Window <= 0 {
			continue
		}
		every := r.Window / time.Duration(r.Limit)
		l.buckets[up] = rate.NewLimiter(rate.Every(every), r.Limit)
	}
	return l
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, upstream string) (time.Duration, error) {
	l.mu.Lock()
	b := l.buckets[upstream]
	l.mu.Unlock()
	if b == nil {
		return 0, nil
	}
	now := l.now()
	r := b.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d, nil
	}
	return 0, nil
}

// slidingLog keeps one sorted-set member per execution scored by its unix
// millisecond; members older than the window are trimmed first.
var slidingLog = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
  return 0
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local wait = tonumber(oldest[2]) + tonumber(ARGV[4]) - tonumber(ARGV[1])
if wait < 1 then
  wait = 1
end
return wait
`)

// RedisWindowLimiter is a Limiter shared by every process that talks to the
// same Redis, so the budget holds across API and worker instances.
type RedisWindowLimiter struct {
	rdb   redis.UniversalClient
	rates map[string]Rate
	now   func() time.Time
}

// NewRedisWindowLimiter returns a RedisWindowLimiter for the given rates.
func NewRedisWindowLimiter(rdb redis.UniversalClient, rates map[string]Rate) *RedisWindowLimiter {
	return &RedisWindowLimiter{rdb: rdb, rates: rates, now: time.Now}
}

// Allow implements Limiter.
func (l *RedisWindowLimiter) Allow(ctx context.Context, upstream string) (time.Duration, error) {
	r, ok := l.rates[upstream]
	if !ok || r.Limit <= 0 || r.Window <= 0 {
		return 0, nil
	}
	now := l.now().UnixMilli()
	window := r.Window.Milliseconds()
	args := []any{
		strconv.FormatInt(now, 10),
		strconv.FormatInt(now-window, 10),
		strconv.Itoa(r.Limit),
		strconv.FormatInt(window, 10),
		uuid.NewString(),
	}
	wait, err := slidingLog.Run(ctx, l.rdb, []string{"ratelimit:" + upstream}, args...).Int64()
	if err != nil {
		return 0, err
	}
	return time.Duration(wait) * time.Millisecond, nil
}
