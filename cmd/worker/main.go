// Command worker consumes job tasks from the queue and drives them through
// the specialist orchestrator.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-career-assist/internal/adapter/observability"
	"github.com/fairyhunter13/ai-career-assist/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-career-assist/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-career-assist/internal/adapter/specialist/httpinvoke"
	"github.com/fairyhunter13/ai-career-assist/internal/adapter/specialist/stub"
	"github.com/fairyhunter13/ai-career-assist/internal/config"
	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	"github.com/fairyhunter13/ai-career-assist/internal/orchestrator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	pool, err := postgres.NewPool(context.Background(), cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	jobRepo := postgres.NewJobRepo(pool)

	specialists, err := loadSpecialists(cfg)
	if err != nil {
		slog.Error("specialist setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	orch := orchestrator.New(jobRepo, specialists, cfg.JobTimeout)
	initial, maxDelay, multiplier, attempts := cfg.DispatchRetry()
	orch.Retry = orchestrator.RetryPolicy{
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Multiplier:   multiplier,
		MaxAttempts:  attempts,
	}

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "career-assist-workers", orch, cfg.ConsumerMinWorkers, cfg.ConsumerMaxWorkers)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

// loadSpecialists builds the specialist set from the YAML registry, falling
// back to the in-process stubs when no registry is configured in dev.
func loadSpecialists(cfg config.Config) (domain.SpecialistSet, error) {
	if cfg.SpecialistsFile != "" {
		return httpinvoke.LoadSet(cfg.SpecialistsFile, cfg.SpecialistTimeout)
	}
	if cfg.IsProd() {
		return domain.SpecialistSet{}, fmt.Errorf("SPECIALISTS_FILE required in prod")
	}
	slog.Warn("no specialists file configured, using stub specialists")
	return stub.NewSet(), nil
}
