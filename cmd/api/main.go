// Command api serves the mirror's HTTP surface. With QUEUE_BACKEND=memory it
// also runs the refresh workers in-process; with asynq they run in
// cmd/worker.
//
//	@title          go-mod-mirror API
//	@version        1.0
//	@description    Read-through mirror of the CurseForge and Modrinth APIs.
//	@BasePath       /
//	@securityDefinitions.apikey ApiKeyAuth
//	@in             header
//	@name           x-api-key
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-mod-mirror/docs"
	"github.com/tbourn/go-mod-mirror/internal/app"
	"github.com/tbourn/go-mod-mirror/internal/config"
	httpapi "github.com/tbourn/go-mod-mirror/internal/http"
	"github.com/tbourn/go-mod-mirror/internal/observability"
	"github.com/tbourn/go-mod-mirror/internal/sysutil"
)

const memoPurgeEvery = 10 * time.Minute

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, "api")
	version := sysutil.Version()
	docs.SwaggerInfo.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Process{Version: version, Role: "api"})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a.HTTPDeps(), cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("queue", cfg.Queue.Backend).
			Str("memo", cfg.Memo.Backend).
			Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return a.RunWorkers(gctx) })
	g.Go(func() error {
		a.PurgeMemo(gctx, memoPurgeEvery)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api stopped with error")
		return
	}
	log.Info().Msg("api stopped")
}
