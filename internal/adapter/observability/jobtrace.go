package observability

import (
	"context"
	"crypto/sha256"

	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// jobTraceSeed namespaces the deterministic trace derivation so job ids do
// not collide with other seeded traces in the same sink.
const jobTraceSeed = "career-job:"

// JobTraceID derives a deterministic trace id from a job id. The same job id
// always yields the same trace id, so redelivered executions attach to the
// same trace.
func JobTraceID(jobID string) trace.TraceID {
	sum := sha256.Sum256([]byte(jobTraceSeed + jobID))
	var tid trace.TraceID
	copy(tid[:], sum[:16])
	return tid
}

// jobRootSpanID derives the synthetic parent span id anchoring the job trace.
func jobRootSpanID(jobID string) trace.SpanID {
	sum := sha256.Sum256([]byte(jobTraceSeed + jobID + ":root"))
	var sid trace.SpanID
	copy(sid[:], sum[16:24])
	return sid
}

// ContextWithJobTrace seeds ctx with a remote parent carrying the
// deterministic trace id for jobID. Spans started under the returned context
// join the job's trace regardless of which worker or delivery produced them.
func ContextWithJobTrace(ctx context.Context, jobID string) context.Context {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    JobTraceID(jobID),
		SpanID:     jobRootSpanID(jobID),
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(ctx, sc)
}

// Propagation captures the current span as a wire trace context for a
// specialist request. Returns nil when no span is recording, which keeps the
// trace field absent rather than sending zero ids.
func Propagation(ctx context.Context) *domain.TraceContext {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return &domain.TraceContext{
		TraceID:      sc.TraceID().String(),
		ParentSpanID: sc.SpanID().String(),
	}
}

// ContextWithRemoteParent re-opens a received wire trace context as the
// remote parent of subsequent spans. Invalid or missing contexts leave ctx
// unchanged; trace failures must never affect request handling.
func ContextWithRemoteParent(ctx context.Context, tc *domain.TraceContext) context.Context {
	if tc == nil {
		return ctx
	}
	tid, err := trace.TraceIDFromHex(tc.TraceID)
	if err != nil {
		return ctx
	}
	sid, err := trace.SpanIDFromHex(tc.ParentSpanID)
	if err != nil {
		return ctx
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(ctx, sc)
}
