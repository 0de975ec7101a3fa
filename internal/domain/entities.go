// Package domain defines the core entities and ports of the career-assist
// control plane. It stays free of third-party imports; adapters carry the
// infrastructure dependencies.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrTransport         = errors.New("transport failure")
	ErrInternal          = errors.New("internal error")
)

// JobKind enumerates the categories of work a job can carry. The kind is
// immutable after creation and fully determines the orchestration plan.
type JobKind string

const (
	KindCVParse       JobKind = "cv_parse"
	KindJobParse      JobKind = "job_parse"
	KindGapAnalysis   JobKind = "gap_analysis"
	KindCVRewrite     JobKind = "cv_rewrite"
	KindInterviewPrep JobKind = "interview_prep"
	KindGetAnalytics  JobKind = "get_analytics"
	KindFullAnalysis  JobKind = "full_analysis"
)

// KnownKinds lists every valid job kind.
func KnownKinds() []JobKind {
	return []JobKind{
		KindCVParse, KindJobParse, KindGapAnalysis, KindCVRewrite,
		KindInterviewPrep, KindGetAnalytics, KindFullAnalysis,
	}
}

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case KindCVParse, KindJobParse, KindGapAnalysis, KindCVRewrite,
		KindInterviewPrep, KindGetAnalytics, KindFullAnalysis:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a job.
// Legal transitions: pending -> processing -> {completed, failed}.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether s is a terminal lifecycle state.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// CanTransitionTo reports whether the state machine permits s -> next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch next {
	case JobProcessing:
		return s == JobPending
	case JobCompleted, JobFailed:
		return s == JobProcessing
	}
	return false
}

// PayloadSlot names one specialist output column on the job record.
type PayloadSlot string

const (
	SlotExtractor   PayloadSlot = "extractor"
	SlotAnalyzer    PayloadSlot = "analyzer"
	SlotInterviewer PayloadSlot = "interviewer"
	SlotCharter     PayloadSlot = "charter"
	SlotSummary     PayloadSlot = "summary"
)

// Valid reports whether p names a known payload slot.
func (p PayloadSlot) Valid() bool {
	switch p {
	case SlotExtractor, SlotAnalyzer, SlotInterviewer, SlotCharter, SlotSummary:
		return true
	}
	return false
}

// JobInput is the structured input envelope. Which fields are meaningful
// depends on the job kind; unknown combinations are tolerated and the
// specialists fail the call if they lack what they need.
type JobInput struct {
	CVText           string          `json:"cv_text,omitempty"`
	JobText          string          `json:"job_text,omitempty"`
	CVProfile        json.RawMessage `json:"cv_profile,omitempty"`
	JobProfile       json.RawMessage `json:"job_profile,omitempty"`
	GapAnalysis      json.RawMessage `json:"gap_analysis,omitempty"`
	ApplicationsData json.RawMessage `json:"applications_data,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
}

// Validate checks that the input carries what the kind minimally requires.
// This is a submit-time guard; the orchestrator re-derives everything from
// the stored record.
func (in JobInput) Validate(kind JobKind) error {
	hasCV := in.CVText != "" || len(in.CVProfile) > 0
	hasJob := in.JobText != "" || len(in.JobProfile) > 0
	switch kind {
	case KindCVParse:
		if in.CVText == "" {
			return fmt.Errorf("%w: cv_text required for %s", ErrInvalidArgument, kind)
		}
	case KindJobParse:
		if in.JobText == "" {
			return fmt.Errorf("%w: job_text required for %s", ErrInvalidArgument, kind)
		}
	case KindGapAnalysis, KindCVRewrite, KindFullAnalysis:
		if !hasCV || !hasJob {
			return fmt.Errorf("%w: cv and job input required for %s", ErrInvalidArgument, kind)
		}
	case KindInterviewPrep:
		if !hasJob {
			return fmt.Errorf("%w: job input required for %s", ErrInvalidArgument, kind)
		}
	case KindGetAnalytics:
		// applications_data and user_id are both optional.
	default:
		return fmt.Errorf("%w: unknown kind: %s", ErrInvalidArgument, kind)
	}
	return nil
}

// Job is the central record of the control plane.
// Invariants: Kind, Input and Owner are immutable after creation; payload
// slots are only ever replaced atomically; status follows the state machine.
type Job struct {
	ID          string
	Owner       string
	Kind        JobKind
	Status      JobStatus
	Progress    int
	Input       JobInput
	Payloads    map[PayloadSlot]json.RawMessage
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// Payload returns the named slot value, or nil when absent.
func (j Job) Payload(slot PayloadSlot) json.RawMessage {
	if j.Payloads == nil {
		return nil
	}
	return j.Payloads[slot]
}

// JobTaskPayload is the queue message envelope. Only JobID is authoritative;
// owner and kind are advisory hints carried for logging before the store is
// reached.
type JobTaskPayload struct {
	JobID string  `json:"job_id"`
	Owner string  `json:"owner,omitempty"`
	Kind  JobKind `json:"kind,omitempty"`
}

// TraceContext is propagated by value to specialists so their spans attach
// under the orchestrator's trace.
type TraceContext struct {
	TraceID      string `json:"trace_id"`
	ParentSpanID string `json:"parent_span_id"`
}

// SpecialistName identifies one of the worker services the orchestrator
// dispatches to.
type SpecialistName string

const (
	SpecialistExtractor   SpecialistName = "extractor"
	SpecialistAnalyzer    SpecialistName = "analyzer"
	SpecialistInterviewer SpecialistName = "interviewer"
	SpecialistCharter     SpecialistName = "charter"
)

// SpecialistRequest is the wire envelope for one specialist invocation.
type SpecialistRequest struct {
	Type             string          `json:"type,omitempty"`
	JobID            string          `json:"job_id"`
	Text             string          `json:"text,omitempty"`
	CVProfile        json.RawMessage `json:"cv_profile,omitempty"`
	JobProfile       json.RawMessage `json:"job_profile,omitempty"`
	GapAnalysis      json.RawMessage `json:"gap_analysis,omitempty"`
	ApplicationsData json.RawMessage `json:"applications_data,omitempty"`
	UserID           string          `json:"user_id,omitempty"`
	Trace            *TraceContext   `json:"trace,omitempty"`
}

// SpecialistResponse is the wire envelope of a specialist result.
// Success=true with CVRewriteError set is a partial success: the gap
// analysis alone is sufficient to count the analyzer step as successful.
type SpecialistResponse struct {
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	Profile        json.RawMessage `json:"profile,omitempty"`
	GapAnalysis    json.RawMessage `json:"gap_analysis,omitempty"`
	CVRewrite      json.RawMessage `json:"cv_rewrite,omitempty"`
	CVRewriteError string          `json:"cv_rewrite_error,omitempty"`
	InterviewPack  json.RawMessage `json:"interview_pack,omitempty"`
	Evaluation     json.RawMessage `json:"evaluation,omitempty"`
	Charts         json.RawMessage `json:"charts,omitempty"`
}

// Repositories (ports)

// JobRepository is the durable job store. Writes are linearizable per record;
// UpdateStatus enforces the lifecycle state machine and UpdatePayload is
// rejected once the record is terminal.
type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	Get(ctx Context, id string) (Job, error)
	UpdateStatus(ctx Context, id string, status JobStatus, errMsg *string) error
	UpdateProgress(ctx Context, id string, progress int) error
	UpdatePayload(ctx Context, id string, slot PayloadSlot, value json.RawMessage) error
	ReadPayload(ctx Context, id string, slot PayloadSlot) (json.RawMessage, error)
	ListStale(ctx Context, status JobStatus, olderThan time.Time, limit int) ([]Job, error)
}

// Queue (port)

// Queue transports job identifiers from the API to orchestrator workers with
// at-least-once delivery.
type Queue interface {
	EnqueueJob(ctx Context, payload JobTaskPayload) (string, error)
}

// Specialist (port)

// Specialist is one external worker service exposing a single synchronous
// invoke operation.
type Specialist interface {
	Name() SpecialistName
	Invoke(ctx Context, req SpecialistRequest) (SpecialistResponse, error)
}

// SpecialistSet bundles the four specialists the orchestrator dispatches to.
type SpecialistSet struct {
	Extractor   Specialist
	Analyzer    Specialist
	Interviewer Specialist
	Charter     Specialist
}

// ByName returns the specialist registered under name, or nil.
func (s SpecialistSet) ByName(name SpecialistName) Specialist {
	switch name {
	case SpecialistExtractor:
		return s.Extractor
	case SpecialistAnalyzer:
		return s.Analyzer
	case SpecialistInterviewer:
		return s.Interviewer
	case SpecialistCharter:
		return s.Charter
	}
	return nil
}

// Context is an alias so the domain package does not force adapters through
// an indirection; adapters pass context.Context straight through.
type Context = context.Context
