// Package usecase holds the application services behind the HTTP API.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	obsctx "github.com/fairyhunter13/ai-career-assist/internal/observability"
	"github.com/fairyhunter13/ai-career-assist/internal/service/ratelimiter"
)

// SubmitBucketClass names the rate-limit bucket class for job submission.
const SubmitBucketClass = "submit"

// SubmitService accepts a job, persists it and enqueues it for processing.
type SubmitService struct {
	Jobs    domain.JobRepository
	Queue   domain.Queue
	Limiter ratelimiter.Limiter
}

// NewSubmitService constructs a SubmitService. Limiter may be nil.
func NewSubmitService(jobs domain.JobRepository, queue domain.Queue, limiter ratelimiter.Limiter) SubmitService {
	return SubmitService{Jobs: jobs, Queue: queue, Limiter: limiter}
}

// Submit validates and creates a pending job, then enqueues it. The created
// record is durable before the queue is touched; if enqueueing fails the job
// stays pending and the sweeper re-enqueues it, so the caller still gets the
// job id.
func (s SubmitService) Submit(ctx domain.Context, owner string, kind domain.JobKind, input domain.JobInput) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", fmt.Errorf("%w: owner required", domain.ErrInvalidArgument)
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind: %s", domain.ErrInvalidArgument, kind)
	}
	if err := input.Validate(kind); err != nil {
		return "", err
	}

	if s.Limiter != nil {
		allowed, retryAfter, err := s.Limiter.Allow(ctx, SubmitBucketClass, owner, 1)
		if err == nil && !allowed {
			return "", fmt.Errorf("%w: retry after %s", domain.ErrRateLimited, retryAfter.Round(time.Millisecond))
		}
	}

	id, err := s.Jobs.Create(ctx, domain.Job{Owner: owner, Kind: kind, Input: input})
	if err != nil {
		return "", err
	}

	if _, err := s.Queue.EnqueueJob(ctx, domain.JobTaskPayload{JobID: id, Owner: owner, Kind: kind}); err != nil {
		// Pending jobs with no queue message are picked up by the sweeper.
		obsctx.LoggerFromContext(ctx).Warn("enqueue failed, job stays pending for sweeper",
			slog.String("job_id", id),
			slog.Any("error", err))
	}
	return id, nil
}
