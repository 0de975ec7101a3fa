// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring and carries the
// deterministic per-job trace derivation that stitches orchestrator and
// specialist spans into one causal graph.
package observability

import (
	"context"
	"log/slog"

	"github.com/fairyhunter13/ai-career-assist/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// provider is the installed tracer provider, nil when tracing is disabled.
// Flush is nil-safe so the control plane never fails a job on trace-sink
// issues.
var provider *trace.TracerProvider

// SetupTracing configures OTEL tracing if endpoint provided. Returns shutdown func.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.OTELServiceName),
	))
	if err != nil {
		return nil, err
	}

	// Sample everything: per-job traces are the primary diagnostic surface of
	// the control plane and volume is bounded by job throughput.
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	provider = tp
	slog.Info("tracing configured", slog.String("endpoint", cfg.OTLPEndpoint))
	return tp.Shutdown, nil
}

// Flush synchronously exports buffered spans. It is a no-op when tracing is
// disabled and never surfaces an error to the caller's control flow.
func Flush(ctx context.Context) {
	if provider == nil {
		return
	}
	if err := provider.ForceFlush(ctx); err != nil {
		slog.Warn("trace flush failed", slog.Any("error", err))
	}
}
