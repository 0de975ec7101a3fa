package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	"github.com/fairyhunter13/ai-career-assist/internal/usecase"
)

// stubRepo implements domain.JobRepository with overridable functions.
type stubRepo struct {
	createFn      func(domain.Job) (string, error)
	getFn         func(string) (domain.Job, error)
	readPayloadFn func(string, domain.PayloadSlot) (json.RawMessage, error)
}

func (r *stubRepo) Create(_ domain.Context, j domain.Job) (string, error) {
	if r.createFn != nil {
		return r.createFn(j)
	}
	return "job-1", nil
}

func (r *stubRepo) Get(_ domain.Context, id string) (domain.Job, error) {
	if r.getFn != nil {
		return r.getFn(id)
	}
	return domain.Job{}, domain.ErrNotFound
}

func (r *stubRepo) UpdateStatus(domain.Context, string, domain.JobStatus, *string) error { return nil }
func (r *stubRepo) UpdateProgress(domain.Context, string, int) error                     { return nil }
func (r *stubRepo) UpdatePayload(domain.Context, string, domain.PayloadSlot, json.RawMessage) error {
	return nil
}

func (r *stubRepo) ReadPayload(_ domain.Context, id string, slot domain.PayloadSlot) (json.RawMessage, error) {
	if r.readPayloadFn != nil {
		return r.readPayloadFn(id, slot)
	}
	return nil, nil
}

func (r *stubRepo) ListStale(domain.Context, domain.JobStatus, time.Time, int) ([]domain.Job, error) {
	return nil, nil
}

type stubQueue struct {
	err      error
	payloads []domain.JobTaskPayload
}

func (q *stubQueue) EnqueueJob(_ domain.Context, p domain.JobTaskPayload) (string, error) {
	q.payloads = append(q.payloads, p)
	if q.err != nil {
		return "", q.err
	}
	return p.JobID, nil
}

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
}

func (l stubLimiter) Allow(context.Context, string, string, int64) (bool, time.Duration, error) {
	return l.allowed, l.retryAfter, l.err
}

func TestSubmit_CreatesAndEnqueues(t *testing.T) {
	t.Parallel()
	queue := &stubQueue{}
	svc := usecase.NewSubmitService(&stubRepo{}, queue, nil)

	id, err := svc.Submit(context.Background(), "owner-1", domain.KindCVParse, domain.JobInput{CVText: "cv"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Len(t, queue.payloads, 1)
	assert.Equal(t, "job-1", queue.payloads[0].JobID)
	assert.Equal(t, domain.KindCVParse, queue.payloads[0].Kind)
}

func TestSubmit_OwnerRequired(t *testing.T) {
	t.Parallel()
	svc := usecase.NewSubmitService(&stubRepo{}, &stubQueue{}, nil)

	_, err := svc.Submit(context.Background(), "   ", domain.KindCVParse, domain.JobInput{CVText: "cv"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSubmit_UnknownKind(t *testing.T) {
	t.Parallel()
	svc := usecase.NewSubmitService(&stubRepo{}, &stubQueue{}, nil)

	_, err := svc.Submit(context.Background(), "owner-1", domain.JobKind("banana"), domain.JobInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "unknown kind: banana")
}

func TestSubmit_InputValidation(t *testing.T) {
	t.Parallel()
	svc := usecase.NewSubmitService(&stubRepo{}, &stubQueue{}, nil)

	_, err := svc.Submit(context.Background(), "owner-1", domain.KindCVParse, domain.JobInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSubmit_RateLimited(t *testing.T) {
	t.Parallel()
	queue := &stubQueue{}
	svc := usecase.NewSubmitService(&stubRepo{}, queue,
		stubLimiter{allowed: false, retryAfter: 1500 * time.Millisecond})

	_, err := svc.Submit(context.Background(), "owner-1", domain.KindCVParse, domain.JobInput{CVText: "cv"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Contains(t, err.Error(), "retry after 1.5s")
	assert.Empty(t, queue.payloads)
}

func TestSubmit_LimiterErrorFailsOpen(t *testing.T) {
	t.Parallel()
	svc := usecase.NewSubmitService(&stubRepo{}, &stubQueue{},
		stubLimiter{allowed: true, err: errors.New("redis down")})

	id, err := svc.Submit(context.Background(), "owner-1", domain.KindCVParse, domain.JobInput{CVText: "cv"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}

func TestSubmit_CreateFailure(t *testing.T) {
	t.Parallel()
	repo := &stubRepo{createFn: func(domain.Job) (string, error) {
		return "", domain.ErrStoreUnavailable
	}}
	svc := usecase.NewSubmitService(repo, &stubQueue{}, nil)

	_, err := svc.Submit(context.Background(), "owner-1", domain.KindCVParse, domain.JobInput{CVText: "cv"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestSubmit_EnqueueFailureStillReturnsID(t *testing.T) {
	t.Parallel()
	queue := &stubQueue{err: errors.New("brokers unreachable")}
	svc := usecase.NewSubmitService(&stubRepo{}, queue, nil)

	id, err := svc.Submit(context.Background(), "owner-1", domain.KindCVParse, domain.JobInput{CVText: "cv"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}
