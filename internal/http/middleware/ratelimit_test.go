package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-mod-mirror/internal/kv"
)

func TestKeyByClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	if key := KeyByClient()(c); key != "ip:203.0.113.9" {
		t.Fatalf("expected ip-based key; got %q", key)
	}
	req.Header.Set("x-api-key", "k123")
	if key := KeyByClient()(c); key != "key:k123" {
		t.Fatalf("expected key-based bucket; got %q", key)
	}
}

func TestNewRateLimiter_BurstCoercion_AndReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByClient())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	lim := rl.getVisitor("k1")
	if got := rl.getVisitor("k1"); got != lim {
		t.Fatalf("expected the bucket to be reused")
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByClient())
	rl.ttl = time.Nanosecond

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.lookups = gcEvery - 1
	rl.mu.Unlock()

	_ = rl.getVisitor("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatalf("idle bucket should be evicted")
	}
	if _, ok := rl.visitors["new"]; !ok {
		t.Fatalf("requested bucket should exist")
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()
	slow := rate.NewLimiter(rate.Every(5*time.Second), 1)
	slow.AllowN(now, 1)
	if got := retryAfter(slow, now); got != 5 {
		t.Fatalf("retryAfter = %d; want 5", got)
	}
	// The rejected reservation is cancelled, so the wait does not grow.
	if got := retryAfter(slow, now); got != 5 {
		t.Fatalf("retryAfter after rejection = %d; want 5", got)
	}
	if got := retryAfter(rate.NewLimiter(100, 1), now); got != 1 {
		t.Fatalf("retryAfter floor = %d; want 1", got)
	}
}

func TestRateLimiter_Handler_DenyExemptAndMemoHit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(0.5, 1, KeyByClient(), "/health")
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header(requestIDHeader, "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.GET("/curseforge/v1/mods/:modId", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(path, apiKey string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if apiKey != "" {
			req.Header.Set("x-api-key", apiKey)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	base := testutil.ToFloat64(rateLimited.WithLabelValues("key"))
	if w := do("/curseforge/v1/mods/238222", "a"); w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}
	w := do("/curseforge/v1/mods/238222", "a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", w.Code)
	}
	if ra, _ := strconv.Atoi(w.Header().Get("Retry-After")); ra < 1 || ra > 2 {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "too_many_requests" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body: %v", body)
	}
	if got := testutil.ToFloat64(rateLimited.WithLabelValues("key")); got != base+1 {
		t.Fatalf("rejections counter = %v; want %v", got, base+1)
	}

	if w := do("/curseforge/v1/mods/238222", "b"); w.Code != http.StatusOK {
		t.Fatalf("another key has its own bucket, got %d", w.Code)
	}
	for i := 0; i < 3; i++ {
		if w := do("/health", "a"); w.Code != http.StatusOK {
			t.Fatalf("exempt path limited: %d", w.Code)
		}
	}

	// Memoized responses are replayed before the limiter runs.
	rMemo := gin.New()
	rMemo.Use(Memoize(kv.NewMemory(), MemoOptions{Routes: map[string]time.Duration{"/ok": time.Minute}}))
	rMemo.Use(NewRateLimiter(1.0, 1, KeyByClient()).Handler())
	rMemo.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		rMemo.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "ok" {
			t.Fatalf("memoized request %d should be served, got %d", i, w.Code)
		}
	}
}
