package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// accessLines returns the decoded http_request lines.
func accessLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		if m["message"] == "http_request" {
			out = append(out, m)
		}
	}
	return out
}

func loggedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Upstream-Token"}}), Recovery())
	return r
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if v, ok := c.Get(requestIDKey); !ok || v == "" {
			t.Fatalf("requestID not set in context")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated %s header", requestIDHeader)
	}

	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestRedactingLogger_MasksSecretsAndLogsMirrorFields(t *testing.T) {
	buf := captureLogger(t)
	r := loggedRouter()
	r.GET("/curseforge/v1/mods/search", func(c *gin.Context) {
		c.Header(HeaderCache, "HIT")
		c.Header(headerTrustable, "true")
		c.String(http.StatusOK, "{}")
	})

	req := httptest.NewRequest(http.MethodGet, "/curseforge/v1/mods/search?searchFilter=jei&token=s3cret&note=me@example.com", nil)
	req.Header.Set("x-api-key", "cf-key")
	req.Header.Set("X-Upstream-Token", "tok")
	req.Header.Set("User-Agent", "launcher/1.0")
	req.Header.Set(requestIDHeader, "rid-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	raw := buf.String()
	for _, secret := range []string{"cf-key", "s3cret", "tok\"", "me@example.com"} {
		if strings.Contains(raw, secret) {
			t.Fatalf("secret %q leaked into logs:\n%s", secret, raw)
		}
	}

	lines := accessLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("want one access line, got %d", len(lines))
	}
	l := lines[0]
	if l["level"] != "info" || l["route"] != "/curseforge/v1/mods/search" || l["request_id"] != "rid-1" {
		t.Fatalf("unexpected line: %v", l)
	}
	if l["cache"] != "HIT" || l["trustable"] != "true" {
		t.Fatalf("mirror fields missing: %v", l)
	}
	if q := l["query"].(string); !strings.Contains(q, "searchFilter=jei") || !strings.Contains(q, "token="+redacted) {
		t.Fatalf("query = %q", q)
	}
	headers := l["headers"].(map[string]any)
	if headers["X-Api-Key"] != redacted || headers["User-Agent"] != "launcher/1.0" {
		t.Fatalf("headers = %v", headers)
	}
}

func TestRedactingLogger_LevelsAndLocation(t *testing.T) {
	buf := captureLogger(t)
	r := loggedRouter()
	r.GET("/files/:a/:b/:name", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "https://mirror.example/x.jar")
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/errs", func(c *gin.Context) {
		_ = c.Error(http.ErrHandlerTimeout)
		c.Status(http.StatusOK)
	})

	for _, p := range []string{"/files/1234/567/x.jar", "/bad", "/boom", "/errs", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	lines := accessLines(t, buf)
	if len(lines) != 5 {
		t.Fatalf("want 5 lines, got %d", len(lines))
	}
	if lines[0]["location"] != "https://mirror.example/x.jar" || lines[0]["route"] != "/files/:a/:b/:name" {
		t.Fatalf("redirect line = %v", lines[0])
	}
	want := []string{"info", "warn", "error", "error", "warn"}
	for i, lvl := range want {
		if lines[i]["level"] != lvl {
			t.Fatalf("line %d level = %v; want %s", i, lines[i]["level"], lvl)
		}
	}
	if lines[4]["route"] != "/missing" {
		t.Fatalf("unmatched route should fall back to the path, got %v", lines[4]["route"])
	}
}

func TestScrubQuery(t *testing.T) {
	mask := lowerSet([]string{"key"}, nil)
	got := scrubQuery(url.Values{"b": {"2"}, "KEY": {"x"}, "a": {"1", "3"}}, mask)
	if got != "KEY="+redacted+"&a=1&a=3&b=2" {
		t.Fatalf("scrubQuery = %q", got)
	}
	if scrubQuery(nil, mask) != "" {
		t.Fatalf("empty query should log as empty")
	}
}

func TestRecovery_PanicsToJSON500AndLogs(t *testing.T) {
	buf := captureLogger(t)
	r := loggedRouter()
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("expected panic log, got:\n%s", buf.String())
	}
}

func TestRecovery_PanicAfterWrite_NoJSON(t *testing.T) {
	captureLogger(t)
	r := loggedRouter()
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("no JSON error body expected after the response started: %q", w.Body.String())
	}
}

func TestLoggerFrom_FallbackAndRequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)

	buf := captureLogger(t)
	bare := gin.New()
	bare.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("custom")
		c.Status(http.StatusOK)
	})
	bare.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/use", nil))
	if !strings.Contains(buf.String(), `"message":"custom"`) || strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("fallback logger output: %s", buf.String())
	}

	buf = captureLogger(t)
	r := loggedRouter()
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("scoped")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/use", nil))
	if !strings.Contains(buf.String(), `"message":"scoped"`) || !strings.Contains(buf.String(), `"route":"/use"`) {
		t.Fatalf("scoped logger output: %s", buf.String())
	}
}

func TestHelpers_asString_and_truncate(t *testing.T) {
	if asString("x") != "x" || asString(123) != "" {
		t.Fatalf("asString failed")
	}
	if truncate("hello", 10) != "hello" || truncate("abcdefgh", 5) != "abcde…" || truncate("abc", 0) != "abc" {
		t.Fatalf("truncate failed")
	}
}
