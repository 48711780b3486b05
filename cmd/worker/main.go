// Command worker consumes refresh jobs from Redis (QUEUE_BACKEND=asynq) and
// writes the refreshed entities to the shared database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-mirror/internal/app"
	"github.com/tbourn/go-mod-mirror/internal/config"
	"github.com/tbourn/go-mod-mirror/internal/jobs"
	"github.com/tbourn/go-mod-mirror/internal/observability"
	"github.com/tbourn/go-mod-mirror/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, "worker")
	if cfg.Queue.Backend != "asynq" {
		log.Fatal().Str("queue", cfg.Queue.Backend).Msg("worker needs QUEUE_BACKEND=asynq; the api runs memory jobs itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Process{Version: sysutil.Version(), Role: "worker"})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer func() { _ = a.Close() }()

	srv, mux := jobs.NewAsynqServer(a.RedisConnOpt(), a.Worker(), jobs.ServerOptions{
		Concurrency:     cfg.Queue.Concurrency,
		ShutdownTimeout: 30 * time.Second,
	})

	log.Info().Int("concurrency", cfg.Queue.Concurrency).Msg("worker running")
	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("worker start failed")
	}
	<-ctx.Done()
	srv.Shutdown()
	log.Info().Msg("worker stopped")
}
