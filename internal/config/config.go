// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, the entity store, the shared key-value store, the refresh queue,
// the upstream registries, freshness windows, and file redirects.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS" envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"go-mod-mirror"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"` // [0..1]
}

// DatabaseConfig selects and configures the entity store.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres
	Path   string `env:"DB_PATH" envDefault:"mirror.db"`
	URL    string `env:"DATABASE_URL"` // postgres DSN
}

// RedisConfig points at the shared key-value store used for dedup, rate
// windows, memoized responses and the asynq queue.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// QueueConfig configures the refresh dispatcher.
type QueueConfig struct {
	Backend     string        `env:"QUEUE_BACKEND" envDefault:"memory"` // memory|asynq
	Concurrency int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	Size        int           `env:"QUEUE_SIZE" envDefault:"1024"`
	MaxRetry    int           `env:"JOB_MAX_RETRY" envDefault:"3"`
	Timeout     time.Duration `env:"JOB_TIMEOUT" envDefault:"2m"`
	DedupWindow time.Duration `env:"DEDUP_WINDOW" envDefault:"10m"`
}

// MemoConfig configures the response memoizer.
type MemoConfig struct {
	Backend   string        `env:"MEMO_BACKEND" envDefault:"memory"` // memory|redis|sql
	TTL       time.Duration `env:"MEMO_TTL" envDefault:"1m"`
	SearchTTL time.Duration `env:"MEMO_SEARCH_TTL" envDefault:"5m"`
}

// UpstreamConfig holds origin API endpoints and the shared retry policy.
type UpstreamConfig struct {
	CurseForgeURL    string        `env:"CURSEFORGE_API_URL" envDefault:"https://api.curseforge.com"`
	CurseForgeAPIKey string        `env:"CURSEFORGE_API_KEY"`
	ModrinthURL      string        `env:"MODRINTH_API_URL" envDefault:"https://api.modrinth.com"`
	UserAgent        string        `env:"USER_AGENT" envDefault:"go-mod-mirror/1.0"`
	Timeout          time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"15s"`
	Retries          uint          `env:"UPSTREAM_RETRIES" envDefault:"3"`

	// Sliding-window job budget per upstream.
	CurseForgeLimit int           `env:"CURSEFORGE_RATE_LIMIT" envDefault:"100"`
	ModrinthLimit   int           `env:"MODRINTH_RATE_LIMIT" envDefault:"100"`
	RateWindow      time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
}

// TTLConfig is the freshness window per entity kind. A zero value means the
// kind never goes stale once fetched.
type TTLConfig struct {
	CFMod         time.Duration `env:"TTL_CF_MOD" envDefault:"24h"`
	CFFile        time.Duration `env:"TTL_CF_FILE" envDefault:"24h"`
	CFFingerprint time.Duration `env:"TTL_CF_FINGERPRINT" envDefault:"0s"`
	MRProject     time.Duration `env:"TTL_MR_PROJECT" envDefault:"24h"`
	MRVersion     time.Duration `env:"TTL_MR_VERSION" envDefault:"24h"`
	MRFile        time.Duration `env:"TTL_MR_FILE" envDefault:"0s"`
}

// RedirectConfig configures the file redirect resolver.
type RedirectConfig struct {
	Mode          string        `env:"REDIRECT_MODE" envDefault:"origin"` // origin|mirror (proxy is a deprecated alias of origin)
	MaxFileSize   int64         `env:"MAX_FILE_SIZE" envDefault:"20971520"`
	OriginMaxAge  time.Duration `env:"ORIGIN_REDIRECT_MAX_AGE" envDefault:"1h"`
	MirrorMaxAge  time.Duration `env:"MIRROR_REDIRECT_MAX_AGE" envDefault:"24h"`
	CurseForgeCDN string        `env:"CURSEFORGE_CDN_URL" envDefault:"https://edge.forgecdn.net"`
	ModrinthCDN   string        `env:"MODRINTH_CDN_URL" envDefault:"https://cdn.modrinth.com"`
}

// MirrorConfig configures the mirror-location index.
type MirrorConfig struct {
	Index      string        `env:"MIRROR_INDEX" envDefault:"sql"` // sql|s3
	BaseURL    string        `env:"MIRROR_BASE_URL"`
	S3Endpoint string        `env:"MIRROR_S3_ENDPOINT"`
	S3Bucket   string        `env:"MIRROR_S3_BUCKET"`
	S3Prefix   string        `env:"MIRROR_S3_PREFIX"`
	S3Access   string        `env:"MIRROR_S3_ACCESS_KEY"`
	S3Secret   string        `env:"MIRROR_S3_SECRET_KEY"`
	S3Region   string        `env:"MIRROR_S3_REGION" envDefault:"us-east-1"`
	S3UseSSL   bool          `env:"MIRROR_S3_USE_SSL" envDefault:"true"`
	PresignTTL time.Duration `env:"MIRROR_PRESIGN_TTL" envDefault:"1h"`
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
	GinMode           string        `env:"GIN_MODE" envDefault:"release"` // debug|release|test

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`

	// Inbound rate limiting
	RateRPS   float64 `env:"RATE_RPS" envDefault:"20"`
	RateBurst int     `env:"RATE_BURST" envDefault:"40"`

	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig

	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Memo     MemoConfig
	Upstream UpstreamConfig
	TTL      TTLConfig
	Redirect RedirectConfig
	Mirror   MirrorConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	normalize(&cfg)
	return cfg, validate(cfg)
}

func normalize(cfg *Config) {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.GinMode = strings.ToLower(cfg.GinMode)
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Queue.Backend = strings.ToLower(strings.TrimSpace(cfg.Queue.Backend))
	cfg.Memo.Backend = strings.ToLower(strings.TrimSpace(cfg.Memo.Backend))
	cfg.Redirect.Mode = strings.ToLower(strings.TrimSpace(cfg.Redirect.Mode))
	cfg.Mirror.Index = strings.ToLower(strings.TrimSpace(cfg.Mirror.Index))

	cfg.Upstream.CurseForgeURL = strings.TrimRight(cfg.Upstream.CurseForgeURL, "/")
	cfg.Upstream.ModrinthURL = strings.TrimRight(cfg.Upstream.ModrinthURL, "/")
	cfg.Redirect.CurseForgeCDN = strings.TrimRight(cfg.Redirect.CurseForgeCDN, "/")
	cfg.Redirect.ModrinthCDN = strings.TrimRight(cfg.Redirect.ModrinthCDN, "/")
	cfg.Mirror.BaseURL = strings.TrimRight(cfg.Mirror.BaseURL, "/")
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	switch cfg.Queue.Backend {
	case "memory":
	case "asynq":
		if cfg.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required when QUEUE_BACKEND=asynq")
		}
	default:
		return errors.New("QUEUE_BACKEND must be one of: memory, asynq")
	}
	if cfg.Queue.Concurrency < 1 {
		return errors.New("WORKER_CONCURRENCY must be >= 1")
	}
	if cfg.Queue.Size < 1 {
		return errors.New("QUEUE_SIZE must be >= 1")
	}
	if cfg.Queue.MaxRetry < 0 {
		return errors.New("JOB_MAX_RETRY must be >= 0")
	}
	if cfg.Queue.Timeout <= 0 || cfg.Queue.DedupWindow <= 0 {
		return errors.New("JOB_TIMEOUT and DEDUP_WINDOW must be > 0")
	}

	switch cfg.Memo.Backend {
	case "memory", "sql":
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required when MEMO_BACKEND=redis")
		}
	default:
		return errors.New("MEMO_BACKEND must be one of: memory, redis, sql")
	}
	if cfg.Memo.TTL < 0 || cfg.Memo.SearchTTL < 0 {
		return errors.New("MEMO_TTL and MEMO_SEARCH_TTL must be >= 0")
	}

	if cfg.Upstream.CurseForgeURL == "" || cfg.Upstream.ModrinthURL == "" {
		return errors.New("CURSEFORGE_API_URL and MODRINTH_API_URL must not be empty")
	}
	if cfg.Upstream.Timeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.Upstream.Retries < 1 {
		return errors.New("UPSTREAM_RETRIES must be >= 1")
	}
	if cfg.Upstream.CurseForgeLimit < 1 || cfg.Upstream.ModrinthLimit < 1 {
		return errors.New("upstream rate limits must be >= 1")
	}
	if cfg.Upstream.RateWindow <= 0 {
		return errors.New("RATE_WINDOW must be > 0")
	}

	for name, d := range map[string]time.Duration{
		"TTL_CF_MOD":         cfg.TTL.CFMod,
		"TTL_CF_FILE":        cfg.TTL.CFFile,
		"TTL_CF_FINGERPRINT": cfg.TTL.CFFingerprint,
		"TTL_MR_PROJECT":     cfg.TTL.MRProject,
		"TTL_MR_VERSION":     cfg.TTL.MRVersion,
		"TTL_MR_FILE":        cfg.TTL.MRFile,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}

	switch cfg.Redirect.Mode {
	case "origin", "mirror", "proxy":
	default:
		return errors.New("REDIRECT_MODE must be one of: origin, mirror")
	}
	if cfg.Redirect.MaxFileSize < 0 {
		return errors.New("MAX_FILE_SIZE must be >= 0")
	}
	if cfg.Redirect.OriginMaxAge < 0 || cfg.Redirect.MirrorMaxAge < 0 {
		return errors.New("redirect max ages must be >= 0")
	}

	switch cfg.Mirror.Index {
	case "sql":
	case "s3":
		if cfg.Mirror.S3Endpoint == "" || cfg.Mirror.S3Bucket == "" {
			return errors.New("MIRROR_S3_ENDPOINT and MIRROR_S3_BUCKET are required when MIRROR_INDEX=s3")
		}
	default:
		return errors.New("MIRROR_INDEX must be one of: sql, s3")
	}
	return nil
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
