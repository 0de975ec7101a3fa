package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-career-assist/internal/adapter/observability"
	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	obsctx "github.com/fairyhunter13/ai-career-assist/internal/observability"
)

// Orchestrator settles queued jobs: it claims the record, runs the specialist
// plan step by step, persists payload slots as they arrive, and drives the
// record to a terminal state. A nil ProcessJob return means the job is
// settled and the queue message may be acknowledged.
type Orchestrator struct {
	Jobs        domain.JobRepository
	Specialists domain.SpecialistSet
	Retry       RetryPolicy
	// JobBudget is the wall-clock limit for one job. Exceeding it fails the
	// job with error "timeout".
	JobBudget time.Duration
}

// New constructs an Orchestrator with the default retry policy.
func New(jobs domain.JobRepository, specialists domain.SpecialistSet, budget time.Duration) *Orchestrator {
	if budget <= 0 {
		budget = 10 * time.Minute
	}
	return &Orchestrator{
		Jobs:        jobs,
		Specialists: specialists,
		Retry:       DefaultRetryPolicy(),
		JobBudget:   budget,
	}
}

// ProcessJob handles one queue delivery. Redeliveries of settled jobs return
// nil without side effects; a lost claim race returns nil as well. Store
// outages return an error so the message is redelivered.
func (o *Orchestrator) ProcessJob(ctx domain.Context, payload domain.JobTaskPayload) error {
	lg := obsctx.LoggerFromContext(ctx)
	start := time.Now()

	job, err := o.Jobs.Get(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", payload.JobID, err)
	}
	if job.Status.Terminal() {
		lg.Info("job already settled, skipping",
			slog.String("status", string(job.Status)))
		return nil
	}

	// Claim the record. A transition rejection here means another worker
	// settled the job between our read and write, which is benign.
	if err := o.Jobs.UpdateStatus(ctx, job.ID, domain.JobProcessing, nil); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			lg.Info("job claim lost, skipping")
			return nil
		}
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}

	// All spans for this job share a deterministic trace id, so redelivered
	// executions land in the same trace.
	ctx = observability.ContextWithJobTrace(ctx, job.ID)
	tracer := otel.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "career-orchestrator")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.Bool("input.has_cv_text", job.Input.CVText != ""),
		attribute.Bool("input.has_job_text", job.Input.JobText != ""),
		attribute.Bool("input.has_cv_profile", len(job.Input.CVProfile) > 0),
		attribute.Bool("input.has_job_profile", len(job.Input.JobProfile) > 0),
	)

	bctx, cancel := context.WithTimeout(ctx, o.JobBudget)
	defer cancel()

	runErr := o.run(bctx, &job)
	defer observability.Flush(ctx)

	if runErr == nil {
		if err := o.Jobs.UpdateStatus(ctx, job.ID, domain.JobCompleted, nil); err != nil {
			if errors.Is(err, domain.ErrIllegalTransition) {
				return nil
			}
			return fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		observability.CompleteJob(string(job.Kind), time.Since(start))
		lg.Info("job completed", slog.Duration("elapsed", time.Since(start)))
		return nil
	}

	// Store outages and worker shutdown are not job failures; leave the
	// record in processing and let redelivery (or the sweeper) pick it up.
	if errors.Is(runErr, domain.ErrStoreUnavailable) || errors.Is(runErr, context.Canceled) {
		span.SetStatus(codes.Error, runErr.Error())
		return fmt.Errorf("process job %s: %w", job.ID, runErr)
	}

	msg := runErr.Error()
	if errors.Is(runErr, context.DeadlineExceeded) {
		msg = "timeout"
	}
	span.SetStatus(codes.Error, msg)
	if err := o.Jobs.UpdateStatus(ctx, job.ID, domain.JobFailed, &msg); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			return nil
		}
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	observability.FailJob(string(job.Kind), time.Since(start))
	lg.Warn("job failed", slog.String("error", msg))
	return nil
}

// workingSet carries the intermediate artifacts threaded between steps.
// Seeded from the job input, updated as specialist results arrive.
type workingSet struct {
	cvProfile   json.RawMessage
	jobProfile  json.RawMessage
	gapAnalysis json.RawMessage
}

// run executes the plan. A non-nil return is the failure message destined for
// the job record, except store errors which propagate as infrastructure
// failures.
func (o *Orchestrator) run(ctx domain.Context, job *domain.Job) error {
	plan, err := BuildPlan(job.Kind, job.Input)
	if err != nil {
		return err
	}

	working := &workingSet{
		cvProfile:   job.Input.CVProfile,
		jobProfile:  job.Input.JobProfile,
		gapAnalysis: job.Input.GapAnalysis,
	}

	total := len(plan)
	for i, step := range plan {
		sp := o.Specialists.ByName(step.Specialist)
		if sp == nil {
			return fmt.Errorf("%s: specialist not configured", step.Specialist)
		}
		req := buildRequest(job, step, working)
		resp, err := o.invokeWithRetry(ctx, sp, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := o.persistStep(ctx, job.ID, step, resp); err != nil {
			if errors.Is(err, domain.ErrIllegalTransition) {
				// The record went terminal under us; nothing left to do here.
				return nil
			}
			return err
		}
		working.absorb(step, resp)
		if err := o.Jobs.UpdateProgress(ctx, job.ID, 100*(i+1)/total); err != nil {
			obsctx.LoggerFromContext(ctx).Warn("progress update failed", slog.Any("error", err))
		}
	}

	if job.Kind == domain.KindFullAnalysis {
		if err := o.ensureInterviewer(ctx, job, working); err != nil {
			return err
		}
	}
	return nil
}

// buildRequest assembles the wire envelope for one step from the job input
// and the working set.
func buildRequest(job *domain.Job, step Step, w *workingSet) domain.SpecialistRequest {
	req := domain.SpecialistRequest{
		Type:   step.Type,
		JobID:  job.ID,
		UserID: job.Input.UserID,
	}
	switch step.Type {
	case TypeCV:
		req.Text = job.Input.CVText
	case TypeJob:
		req.Text = job.Input.JobText
	case TypeGapAnalysis, TypeFullAnalysis:
		req.CVProfile = w.cvProfile
		req.JobProfile = w.jobProfile
	case TypeCVRewrite:
		req.CVProfile = w.cvProfile
		req.JobProfile = w.jobProfile
		req.GapAnalysis = w.gapAnalysis
	case TypeInterview:
		req.CVProfile = w.cvProfile
		req.JobProfile = w.jobProfile
		req.GapAnalysis = w.gapAnalysis
	case TypeAnalytics:
		req.ApplicationsData = job.Input.ApplicationsData
	}
	return req
}

// absorb folds a step result into the working set so later steps see it.
// The extractor returns a bare profile; the step type says which one it is.
func (w *workingSet) absorb(step Step, resp domain.SpecialistResponse) {
	if step.Specialist == domain.SpecialistExtractor && len(resp.Profile) > 0 {
		switch step.Type {
		case TypeCV:
			w.cvProfile = resp.Profile
		case TypeJob:
			w.jobProfile = resp.Profile
		}
	}
	if step.Specialist == domain.SpecialistAnalyzer && len(resp.GapAnalysis) > 0 {
		w.gapAnalysis = resp.GapAnalysis
	}
}

// persistStep writes the step result into its payload slot. The extractor
// returns a bare profile; it is wrapped under cv_profile or job_profile
// according to the step type and merged into the extractor slot so both
// profiles coexist there. Analyzer results are stored whole, and a produced
// cv_rewrite is mirrored into the summary slot. A successful response with no
// result still writes an empty object so the slot reads as attempted.
func (o *Orchestrator) persistStep(ctx domain.Context, jobID string, step Step, resp domain.SpecialistResponse) error {
	switch step.Specialist {
	case domain.SpecialistExtractor:
		return o.mergeExtractorPayload(ctx, jobID, profileKey(step.Type), resp.Profile)
	case domain.SpecialistAnalyzer:
		if !hasResult(resp) {
			return o.Jobs.UpdatePayload(ctx, jobID, domain.SlotAnalyzer, json.RawMessage(`{}`))
		}
		full, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode analyzer payload: %w", err)
		}
		if err := o.Jobs.UpdatePayload(ctx, jobID, domain.SlotAnalyzer, full); err != nil {
			return err
		}
		if len(resp.CVRewrite) > 0 {
			return o.Jobs.UpdatePayload(ctx, jobID, domain.SlotSummary, resp.CVRewrite)
		}
		return nil
	default:
		if !hasResult(resp) {
			return o.Jobs.UpdatePayload(ctx, jobID, step.Slot, json.RawMessage(`{}`))
		}
		full, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", step.Slot, err)
		}
		return o.Jobs.UpdatePayload(ctx, jobID, step.Slot, full)
	}
}

// profileKey maps an extractor step type to the key its profile is stored
// under in the extractor slot.
func profileKey(stepType string) string {
	if stepType == TypeJob {
		return "job_profile"
	}
	return "cv_profile"
}

// hasResult reports whether the response carries any result payload.
func hasResult(resp domain.SpecialistResponse) bool {
	return len(resp.Profile) > 0 ||
		len(resp.GapAnalysis) > 0 ||
		len(resp.CVRewrite) > 0 ||
		len(resp.InterviewPack) > 0 ||
		len(resp.Evaluation) > 0 ||
		len(resp.Charts) > 0 ||
		resp.CVRewriteError != ""
}

// mergeExtractorPayload read-merge-writes the extractor slot so a job profile
// arriving after a cv profile extends the object instead of replacing it.
func (o *Orchestrator) mergeExtractorPayload(ctx domain.Context, jobID, key string, profile json.RawMessage) error {
	merged := map[string]json.RawMessage{}
	existing, err := o.Jobs.ReadPayload(ctx, jobID, domain.SlotExtractor)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &merged)
	}
	if len(profile) > 0 {
		merged[key] = profile
	}
	value, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode extractor payload: %w", err)
	}
	return o.Jobs.UpdatePayload(ctx, jobID, domain.SlotExtractor, value)
}

// ensureInterviewer guarantees the interviewer ran for a full analysis. The
// plan already ends with an interviewer step; this re-reads the slot and
// invokes the interviewer directly if the payload is still absent.
func (o *Orchestrator) ensureInterviewer(ctx domain.Context, job *domain.Job, w *workingSet) error {
	existing, err := o.Jobs.ReadPayload(ctx, job.ID, domain.SlotInterviewer)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	obsctx.LoggerFromContext(ctx).Warn("interviewer payload missing after full analysis, invoking directly")
	sp := o.Specialists.Interviewer
	if sp == nil {
		return fmt.Errorf("%s: specialist not configured", domain.SpecialistInterviewer)
	}
	step := Step{domain.SpecialistInterviewer, TypeInterview, domain.SlotInterviewer}
	resp, err := o.invokeWithRetry(ctx, sp, buildRequest(job, step, w))
	if err != nil {
		if ctx.Err() != nil {
			return context.DeadlineExceeded
		}
		return err
	}
	return o.persistStep(ctx, job.ID, step, resp)
}
