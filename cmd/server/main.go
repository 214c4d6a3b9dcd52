package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/county-health/internal/config"
	"github.com/iliyamo/county-health/internal/database"
	"github.com/iliyamo/county-health/internal/handler"
	"github.com/iliyamo/county-health/internal/metrics"
	"github.com/iliyamo/county-health/internal/middleware"
	"github.com/iliyamo/county-health/internal/queue"
	"github.com/iliyamo/county-health/internal/repository"
	"github.com/iliyamo/county-health/internal/router"
)

func main() {
	cfg := config.Load()
	level := config.ParseLogLevel(cfg.LogLevel)
	logger := log.New("server")
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.DB)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	m := metrics.New()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
		logger.Infof("redis connected")
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, m)

	e := router.New(router.Deps{
		API: &handler.APIHandler{
			Counties: repository.NewCountyRepo(store),
			Schema:   repository.NewSchemaRepo(store),
			Metrics:  m,
		},
		Health:    &handler.HealthHandler{Store: store},
		Metrics:   m,
		Cache:     cache,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, m),
		LogLevel:  level,
	})

	if cfg.Events.Enabled {
		consumer := &queue.Consumer{
			URL:   cfg.Events.URL,
			Queue: cfg.Events.Queue,
			Log:   logger,
			Handle: func(ctx context.Context, ev queue.TableIngestedEvent) error {
				n, err := cache.Invalidate(ctx)
				if err != nil {
					return err
				}
				logger.Infof("cache: dropped %d entries after %s ingest", n, ev.Table)
				return nil
			},
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("events consumer: %v", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s, store=%s)", addr, cfg.Env, store.Dialect().Name())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
