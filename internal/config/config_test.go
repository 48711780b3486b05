package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.Port == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "mirror.db" {
		t.Fatalf("database defaults unexpected: %+v", cfg.Database)
	}
	if cfg.Queue.Backend != "memory" || cfg.Queue.MaxRetry != 3 || cfg.Queue.DedupWindow != 10*time.Minute {
		t.Fatalf("queue defaults unexpected: %+v", cfg.Queue)
	}
	if cfg.Upstream.Retries != 3 || cfg.Upstream.CurseForgeLimit != 100 || cfg.Upstream.RateWindow != time.Minute {
		t.Fatalf("upstream defaults unexpected: %+v", cfg.Upstream)
	}
	if cfg.TTL.MRFile != 0 || cfg.TTL.CFFingerprint != 0 || cfg.TTL.CFMod != 24*time.Hour {
		t.Fatalf("ttl defaults unexpected: %+v", cfg.TTL)
	}
	if cfg.Redirect.Mode != "origin" || cfg.Redirect.MaxFileSize != 20<<20 {
		t.Fatalf("redirect defaults unexpected: %+v", cfg.Redirect)
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("expected no CORS origins by default, got %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "WARNING") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("SWAGGER_ENABLED", "1")

	// Stores
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/mirror")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("QUEUE_BACKEND", "asynq")
	t.Setenv("MEMO_BACKEND", "redis")

	// Upstreams
	t.Setenv("CURSEFORGE_API_URL", "https://cf.example/")
	t.Setenv("MODRINTH_API_URL", "https://mr.example/")
	t.Setenv("UPSTREAM_RETRIES", "5")
	t.Setenv("RATE_WINDOW", "30s")

	// Redirects
	t.Setenv("REDIRECT_MODE", " Mirror ")
	t.Setenv("MIRROR_BASE_URL", "https://mirror.example/")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.Database.Driver != "postgres" || cfg.Queue.Backend != "asynq" || cfg.Memo.Backend != "redis" {
		t.Fatalf("store selection unexpected: %+v %+v %+v", cfg.Database, cfg.Queue, cfg.Memo)
	}
	if cfg.Upstream.CurseForgeURL != "https://cf.example" || cfg.Upstream.ModrinthURL != "https://mr.example" {
		t.Fatalf("upstream urls not normalized: %+v", cfg.Upstream)
	}
	if cfg.Upstream.Retries != 5 || cfg.Upstream.RateWindow != 30*time.Second {
		t.Fatalf("upstream policy unexpected: %+v", cfg.Upstream)
	}
	if cfg.Redirect.Mode != "mirror" || cfg.Mirror.BaseURL != "https://mirror.example" {
		t.Fatalf("redirect unexpected: %+v %+v", cfg.Redirect, cfg.Mirror)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("RATE_RPS", "x")
	if _, err := Load(); err == nil || !containsErr(err, "parse env") {
		t.Fatalf("expected parse error, got: %v", err)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"otel sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"asynq without redis", map[string]string{"QUEUE_BACKEND": "asynq"}, "REDIS_ADDR"},
		{"unknown queue", map[string]string{"QUEUE_BACKEND": "kafka"}, "QUEUE_BACKEND"},
		{"zero concurrency", map[string]string{"WORKER_CONCURRENCY": "0"}, "WORKER_CONCURRENCY"},
		{"redis memo without redis", map[string]string{"MEMO_BACKEND": "redis"}, "REDIS_ADDR"},
		{"negative memo ttl", map[string]string{"MEMO_TTL": "-1s"}, "MEMO_TTL"},
		{"zero retries", map[string]string{"UPSTREAM_RETRIES": "0"}, "UPSTREAM_RETRIES"},
		{"zero rate limit", map[string]string{"MODRINTH_RATE_LIMIT": "0"}, "rate limits"},
		{"negative ttl", map[string]string{"TTL_MR_VERSION": "-1h"}, "TTL_MR_VERSION"},
		{"unknown redirect mode", map[string]string{"REDIRECT_MODE": "p2p"}, "REDIRECT_MODE"},
		{"s3 index without bucket", map[string]string{"MIRROR_INDEX": "s3"}, "MIRROR_S3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %q validation error, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_LegacyRedirectModeAccepted(t *testing.T) {
	t.Setenv("REDIRECT_MODE", "proxy")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Redirect.Mode != "proxy" {
		t.Fatalf("expected proxy mode to be kept for the resolver to alias, got %q", cfg.Redirect.Mode)
	}
}

func TestTrimAll(t *testing.T) {
	if out := trimAll(nil); out != nil {
		t.Fatalf("trimAll(nil) should return nil")
	}
	if out := trimAll([]string{" ", ""}); out != nil {
		t.Fatalf("trimAll of blanks should return nil, got %#v", out)
	}
	want := []string{"a", "b"}
	if got := trimAll([]string{" a", " ", "b "}); !reflect.DeepEqual(got, want) {
		t.Fatalf("trimAll mismatch: got %#v want %#v", got, want)
	}
}

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
