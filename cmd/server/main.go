// Command server starts the career-assist HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/ai-career-assist/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-career-assist/internal/adapter/observability"
	"github.com/fairyhunter13/ai-career-assist/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-career-assist/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-career-assist/internal/app"
	"github.com/fairyhunter13/ai-career-assist/internal/config"
	"github.com/fairyhunter13/ai-career-assist/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-career-assist/internal/usecase"
)

// redisAdapter narrows *redis.Client to the readiness interface.
type redisAdapter struct{ *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult {
	return r.Client.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	// Per-owner submission budget, shared across API instances through Redis.
	var rdb *redis.Client
	var limiter ratelimiter.Limiter
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			usecase.SubmitBucketClass: ratelimiter.NewBucketConfigFromPerMinute(cfg.SubmitRatePerMinute),
		})
	}

	submitSvc := usecase.NewSubmitService(jobRepo, producer, limiter)
	resultSvc := usecase.NewResultService(jobRepo)

	// The sweeper runs beside the API so stale pending jobs are re-enqueued
	// even when no worker has claimed them yet.
	sweeper := app.NewJobSweeper(jobRepo, producer, cfg.SweepInterval, cfg.PendingRequeueAfter, cfg.ProcessingFailAfter)
	go sweeper.Run(ctx)

	var redisCheckClient app.RedisClient
	if rdb != nil {
		redisCheckClient = redisAdapter{rdb}
	}
	dbCheck, queueCheck, redisCheck := app.BuildReadinessChecks(pool, producer, redisCheckClient)

	srv := &httpserver.Server{
		Cfg:        cfg,
		Submit:     submitSvc,
		Results:    resultSvc,
		DBCheck:    dbCheck,
		QueueCheck: queueCheck,
		RedisCheck: redisCheck,
	}
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
