package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-career-assist/internal/adapter/observability"
	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	obsctx "github.com/fairyhunter13/ai-career-assist/internal/observability"
)

// RetryPolicy bounds retries of transient specialist failures.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultRetryPolicy matches the production dispatch behavior.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 4 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
	}
}

// stepError is a settled step failure carrying the message that goes into the
// job record, already in "<specialist>: <message>" form.
type stepError struct {
	specialist domain.SpecialistName
	msg        string
}

func (e *stepError) Error() string { return fmt.Sprintf("%s: %s", e.specialist, e.msg) }

// invokeWithRetry calls one specialist, retrying transient failures under the
// retry policy. Rate limits, timeouts and transport errors retry with
// exponential backoff; everything else fails the step immediately. The
// returned error, if any, is a *stepError unless the context expired.
func (o *Orchestrator) invokeWithRetry(ctx domain.Context, sp domain.Specialist, req domain.SpecialistRequest) (domain.SpecialistResponse, error) {
	name := sp.Name()
	tracer := otel.Tracer("orchestrator")

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.Retry.InitialDelay
	expo.MaxInterval = o.Retry.MaxDelay
	expo.Multiplier = o.Retry.Multiplier
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	attempts := o.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx)

	var resp domain.SpecialistResponse
	operation := func() error {
		ictx, span := tracer.Start(ctx, "invoke-"+string(name))
		defer span.End()
		span.SetAttributes(
			attribute.String("specialist", string(name)),
			attribute.String("request.type", req.Type),
			attribute.String("job.id", req.JobID),
		)
		if req.Text != "" {
			span.SetAttributes(attribute.String("request.text",
				observability.TruncateForTrace(req.Text).(string)))
		}

		req.Trace = observability.Propagation(ictx)

		start := time.Now()
		var err error
		resp, err = sp.Invoke(ictx, req)
		dur := time.Since(start)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.ObserveInvocation(string(name), "error", dur)
			if domain.ClassifyError(err) == domain.FailureTransient {
				return err
			}
			return backoff.Permanent(&stepError{specialist: name, msg: err.Error()})
		}
		if !resp.Success {
			span.SetStatus(codes.Error, resp.Error)
			observability.ObserveInvocation(string(name), "failure", dur)
			if domain.ClassifyFailure(resp.Error) == domain.FailureTransient {
				return fmt.Errorf("%s", resp.Error)
			}
			return backoff.Permanent(&stepError{specialist: name, msg: resp.Error})
		}

		if resp.CVRewriteError != "" {
			span.SetAttributes(attribute.String("cv_rewrite_error", resp.CVRewriteError))
		}
		observability.ObserveInvocation(string(name), "success", dur)
		return nil
	}

	notify := func(err error, next time.Duration) {
		observability.ObserveRetry(string(name))
		obsctx.LoggerFromContext(ctx).Warn("specialist invocation retrying",
			slog.String("specialist", string(name)),
			slog.Duration("next_delay", next),
			slog.Any("error", err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var se *stepError
		if errors.As(err, &se) {
			return resp, se
		}
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		// Transient failure that exhausted its retry budget.
		return resp, &stepError{specialist: name, msg: err.Error()}
	}
	return resp, nil
}
