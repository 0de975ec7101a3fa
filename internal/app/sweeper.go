package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// JobSweeper repairs jobs the queue lost track of. Pending jobs past their
// requeue age get a fresh queue message (the state machine has no
// pending -> failed edge, so re-enqueueing is the only recovery); processing
// jobs past their fail age are declared dead and failed.
type JobSweeper struct {
	jobs  domain.JobRepository
	queue domain.Queue

	interval            time.Duration
	pendingRequeueAfter time.Duration
	processingFailAfter time.Duration
}

// NewJobSweeper constructs a sweeper. Returns nil when jobs is nil.
func NewJobSweeper(jobs domain.JobRepository, queue domain.Queue, interval, pendingRequeueAfter, processingFailAfter time.Duration) *JobSweeper {
	if jobs == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if pendingRequeueAfter <= 0 {
		pendingRequeueAfter = 5 * time.Minute
	}
	if processingFailAfter <= 0 {
		processingFailAfter = 15 * time.Minute
	}
	return &JobSweeper{
		jobs:                jobs,
		queue:               queue,
		interval:            interval,
		pendingRequeueAfter: pendingRequeueAfter,
		processingFailAfter: processingFailAfter,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *JobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

const sweepPageSize = 100

func (s *JobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "JobSweeper.sweepOnce")
	defer span.End()

	requeued := s.requeueStalePending(ctx)
	failed := s.failStaleProcessing(ctx)
	span.SetAttributes(
		attribute.Int("jobs.requeued", requeued),
		attribute.Int("jobs.marked_failed", failed),
	)
}

func (s *JobSweeper) requeueStalePending(ctx context.Context) int {
	if s.queue == nil {
		return 0
	}
	cutoff := time.Now().Add(-s.pendingRequeueAfter)
	jobs, err := s.jobs.ListStale(ctx, domain.JobPending, cutoff, sweepPageSize)
	if err != nil {
		slog.Error("sweep failed to list stale pending jobs", slog.Any("error", err))
		return 0
	}
	requeued := 0
	for _, j := range jobs {
		payload := domain.JobTaskPayload{JobID: j.ID, Owner: j.Owner, Kind: j.Kind}
		if _, err := s.queue.EnqueueJob(ctx, payload); err != nil {
			slog.Error("sweep failed to re-enqueue pending job",
				slog.String("job_id", j.ID),
				slog.Any("error", err))
			continue
		}
		// Duplicate deliveries from repeat sweeps are absorbed by the claim
		// race in the orchestrator.
		requeued++
		slog.Info("re-enqueued stale pending job", slog.String("job_id", j.ID))
	}
	return requeued
}

func (s *JobSweeper) failStaleProcessing(ctx context.Context) int {
	cutoff := time.Now().Add(-s.processingFailAfter)
	jobs, err := s.jobs.ListStale(ctx, domain.JobProcessing, cutoff, sweepPageSize)
	if err != nil {
		slog.Error("sweep failed to list stale processing jobs", slog.Any("error", err))
		return 0
	}
	failed := 0
	for _, j := range jobs {
		msg := fmt.Sprintf("job processing exceeded maximum age %v; marked failed by sweeper", s.processingFailAfter)
		if err := s.jobs.UpdateStatus(ctx, j.ID, domain.JobFailed, &msg); err != nil {
			slog.Error("sweep failed to mark job failed",
				slog.String("job_id", j.ID),
				slog.Any("error", err))
			continue
		}
		failed++
		slog.Warn("marked stale processing job failed", slog.String("job_id", j.ID))
	}
	return failed
}
