// Package app builds the object graph shared by the API and worker binaries:
// database, Redis, key-value stores, upstream clients, the refresh
// dispatcher and the lookup services.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-mirror/internal/config"
	httpapi "github.com/tbourn/go-mod-mirror/internal/http"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/kv"
	"github.com/tbourn/go-mod-mirror/internal/mirror"
	"github.com/tbourn/go-mod-mirror/internal/observability"
	"github.com/tbourn/go-mod-mirror/internal/refresh"
	"github.com/tbourn/go-mod-mirror/internal/repo"
	"github.com/tbourn/go-mod-mirror/internal/services"
	"github.com/tbourn/go-mod-mirror/internal/upstream"
)

// App holds long-lived dependencies. Build it once with New and release it
// with Close.
type App struct {
	Config config.Config
	Log    zerolog.Logger

	DB    *gorm.DB
	Redis redis.UniversalClient // nil without REDIS_ADDR

	// Memo backs the response memoizer; Dedup backs in-flight job keys.
	Memo  kv.Store
	Dedup *jobs.Deduper

	Limiter    jobs.Limiter
	Dispatcher jobs.Dispatcher
	// Pool is set for the in-process backend; RunWorkers drives it.
	Pool *jobs.MemoryDispatcher

	CurseForge *upstream.CurseForge
	Modrinth   *upstream.Modrinth
	Index      mirror.Index
	Registry   *refresh.Registry

	closers []func() error
}

// New connects every backend named by cfg. On error, whatever was opened
// is closed again.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	var err error
	if a.DB, err = repo.Open(cfg.Database, cfg.OTEL.Enabled); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	if err = repo.AutoMigrate(a.DB); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err = rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.Redis = rdb
	}

	if a.Memo, err = memoStore(cfg.Memo, a.DB, a.Redis); err != nil {
		return nil, err
	}

	rates := map[string]jobs.Rate{
		"curseforge": {Limit: cfg.Upstream.CurseForgeLimit, Window: cfg.Upstream.RateWindow},
		"modrinth":   {Limit: cfg.Upstream.ModrinthLimit, Window: cfg.Upstream.RateWindow},
	}
	if a.Redis != nil {
		a.Dedup = jobs.NewDeduper(kv.NewRedis(a.Redis, redisPrefix), cfg.Queue.DedupWindow)
		a.Limiter = jobs.NewRedisWindowLimiter(a.Redis, rates)
	} else {
		a.Dedup = jobs.NewDeduper(kv.NewMemory(), cfg.Queue.DedupWindow)
		a.Limiter = jobs.NewLocalLimiter(rates)
	}

	switch cfg.Queue.Backend {
	case "asynq":
		client := asynq.NewClient(a.RedisConnOpt())
		a.closers = append(a.closers, client.Close)
		a.Dispatcher = jobs.NewAsynqDispatcher(client, a.Dedup, jobs.AsynqOptions{
			MaxRetry: cfg.Queue.MaxRetry,
			Timeout:  cfg.Queue.Timeout,
		})
	default:
		a.Pool = jobs.NewMemoryDispatcher(jobs.MemoryOptions{
			Workers:   cfg.Queue.Concurrency,
			QueueSize: cfg.Queue.Size,
			MaxRetry:  cfg.Queue.MaxRetry,
			Deduper:   a.Dedup,
			Limiter:   a.Limiter,
			Logger:    log,
		})
		a.Dispatcher = a.Pool
	}

	up := cfg.Upstream
	opts := upstream.Options{Timeout: up.Timeout, Retries: up.Retries, UserAgent: up.UserAgent}
	cfOpts, mrOpts := opts, opts
	cfOpts.BaseURL, mrOpts.BaseURL = up.CurseForgeURL, up.ModrinthURL
	a.CurseForge = upstream.NewCurseForge(up.CurseForgeAPIKey, cfOpts)
	a.Modrinth = upstream.NewModrinth(mrOpts)

	if a.Index, err = mirrorIndex(cfg.Mirror, a.DB); err != nil {
		return nil, err
	}

	actors := &refresh.Actors{
		DB:         a.DB,
		CurseForge: a.CurseForge,
		Modrinth:   a.Modrinth,
		Dispatcher: a.Dispatcher,
		Log:        log,
	}
	a.Registry = actors.Registry()
	built = true
	return a, nil
}

// redisPrefix namespaces every key the mirror writes to Redis. Consumers add
// their own segment ("dedup:", "memo:").
const redisPrefix = "mirror:"

func memoStore(cfg config.MemoConfig, db *gorm.DB, rdb redis.UniversalClient) (kv.Store, error) {
	switch cfg.Backend {
	case "redis":
		if rdb == nil {
			return nil, errors.New("memo backend redis needs REDIS_ADDR")
		}
		return kv.NewRedis(rdb, redisPrefix), nil
	case "sql":
		return kv.NewSQL(db), nil
	default:
		return kv.NewMemory(), nil
	}
}

func mirrorIndex(cfg config.MirrorConfig, db *gorm.DB) (mirror.Index, error) {
	if cfg.Index != "s3" {
		return mirror.NewSQLIndex(db, cfg.BaseURL), nil
	}
	idx, err := mirror.NewS3Index(mirror.S3Config{
		Endpoint:   cfg.S3Endpoint,
		Bucket:     cfg.S3Bucket,
		Prefix:     cfg.S3Prefix,
		AccessKey:  cfg.S3Access,
		SecretKey:  cfg.S3Secret,
		Region:     cfg.S3Region,
		UseSSL:     cfg.S3UseSSL,
		BaseURL:    cfg.BaseURL,
		PresignTTL: cfg.PresignTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("mirror index: %w", err)
	}
	return idx, nil
}

// RedisConnOpt returns the asynq connection options for the configured Redis.
func (a *App) RedisConnOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// HTTPDeps builds the services the HTTP routes are bound to.
func (a *App) HTTPDeps() httpapi.Deps {
	return httpapi.Deps{
		CurseForge: services.NewCurseForgeService(a.DB, a.Dispatcher, a.CurseForge, a.Config.TTL, a.Log),
		Modrinth:   services.NewModrinthService(a.DB, a.Dispatcher, a.Modrinth, a.Config.TTL, a.Log),
		Files:      services.NewRedirectService(a.DB, a.Dispatcher, a.Index, a.Config.Redirect, a.Log),
		Inventory:  services.NewInventoryService(a.Index),
		Stats:      &services.StatsService{DB: a.DB},
		Memo:       a.Memo,
	}
}

// RunWorkers drives the in-process pool until ctx ends. With the asynq
// backend jobs run in cmd/worker and this only waits.
func (a *App) RunWorkers(ctx context.Context) error {
	if a.Pool == nil {
		<-ctx.Done()
		return nil
	}
	return a.Pool.Run(ctx, observability.TraceJobs(a.Registry))
}

// Worker returns the asynq task handler running the traced refresh registry.
func (a *App) Worker() *jobs.Worker {
	return jobs.NewWorker(observability.TraceJobs(a.Registry), a.Dedup, a.Limiter, a.Log)
}

// PurgeMemo deletes expired memo rows every interval until ctx ends. Only the
// SQL backend keeps expired rows around.
func (a *App) PurgeMemo(ctx context.Context, every time.Duration) {
	store, ok := a.Memo.(*kv.SQL)
	if !ok || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.Purge(ctx)
			if err != nil {
				a.Log.Warn().Err(err).Msg("memo purge failed")
				continue
			}
			if n > 0 {
				a.Log.Debug().Int64("rows", n).Msg("memo purged")
			}
		}
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
