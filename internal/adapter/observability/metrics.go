package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"kind"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"kind"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"kind"},
	)
	JobProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_processing_duration_seconds",
			Help:    "Wall-clock duration of job processing from dequeue to terminal state",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	SpecialistInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specialist_invocations_total",
			Help: "Total number of specialist invocations by outcome",
		},
		[]string{"specialist", "outcome"},
	)
	SpecialistRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "specialist_retries_total",
			Help: "Total number of specialist invocation retries",
		},
		[]string{"specialist"},
	)
	SpecialistInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "specialist_invocation_duration_seconds",
			Help:    "Specialist invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"specialist"},
	)
)

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobProcessingDuration)
	prometheus.MustRegister(SpecialistInvocationsTotal)
	prometheus.MustRegister(SpecialistRetriesTotal)
	prometheus.MustRegister(SpecialistInvocationDuration)
}

// EnqueueJob records a job enqueue.
func EnqueueJob(kind string) { JobsEnqueuedTotal.WithLabelValues(kind).Inc() }

// CompleteJob records a completed job and its processing duration.
func CompleteJob(kind string, dur time.Duration) {
	JobsCompletedTotal.WithLabelValues(kind).Inc()
	JobProcessingDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

// FailJob records a failed job and its processing duration.
func FailJob(kind string, dur time.Duration) {
	JobsFailedTotal.WithLabelValues(kind).Inc()
	JobProcessingDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

// ObserveInvocation records one specialist invocation attempt outcome.
func ObserveInvocation(specialist, outcome string, dur time.Duration) {
	SpecialistInvocationsTotal.WithLabelValues(specialist, outcome).Inc()
	SpecialistInvocationDuration.WithLabelValues(specialist).Observe(dur.Seconds())
}

// ObserveRetry records one retry of a specialist invocation.
func ObserveRetry(specialist string) { SpecialistRetriesTotal.WithLabelValues(specialist).Inc() }

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
