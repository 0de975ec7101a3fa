package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-career-assist/internal/app"
	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

type sweepRepo struct {
	mu       sync.Mutex
	stale    map[domain.JobStatus][]domain.Job
	listErr  error
	failed   []string
	failMsgs []string
}

func (r *sweepRepo) Create(domain.Context, domain.Job) (string, error) { return "", nil }
func (r *sweepRepo) Get(domain.Context, string) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (r *sweepRepo) UpdateStatus(_ domain.Context, id string, status domain.JobStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == domain.JobFailed {
		r.failed = append(r.failed, id)
		if errMsg != nil {
			r.failMsgs = append(r.failMsgs, *errMsg)
		}
	}
	return nil
}

func (r *sweepRepo) UpdateProgress(domain.Context, string, int) error { return nil }
func (r *sweepRepo) UpdatePayload(domain.Context, string, domain.PayloadSlot, json.RawMessage) error {
	return nil
}

func (r *sweepRepo) ReadPayload(domain.Context, string, domain.PayloadSlot) (json.RawMessage, error) {
	return nil, nil
}

func (r *sweepRepo) ListStale(_ domain.Context, status domain.JobStatus, _ time.Time, _ int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.stale[status], nil
}

type sweepQueue struct {
	mu       sync.Mutex
	err      error
	payloads []domain.JobTaskPayload
}

func (q *sweepQueue) EnqueueJob(_ domain.Context, p domain.JobTaskPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return p.JobID, nil
}

// runOneSweep runs the sweeper long enough for the immediate sweep and stops.
func runOneSweep(t *testing.T, s *app.JobSweeper) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_RequeuesStalePending(t *testing.T) {
	t.Parallel()
	repo := &sweepRepo{stale: map[domain.JobStatus][]domain.Job{
		domain.JobPending: {
			{ID: "job-1", Owner: "owner-1", Kind: domain.KindCVParse},
			{ID: "job-2", Owner: "owner-2", Kind: domain.KindFullAnalysis},
		},
	}}
	queue := &sweepQueue{}
	s := app.NewJobSweeper(repo, queue, time.Hour, time.Minute, time.Minute)
	require.NotNil(t, s)

	runOneSweep(t, s)

	require.Len(t, queue.payloads, 2)
	assert.Equal(t, "job-1", queue.payloads[0].JobID)
	assert.Equal(t, domain.KindCVParse, queue.payloads[0].Kind)
	assert.Empty(t, repo.failed)
}

func TestSweeper_FailsStaleProcessing(t *testing.T) {
	t.Parallel()
	repo := &sweepRepo{stale: map[domain.JobStatus][]domain.Job{
		domain.JobProcessing: {{ID: "job-9", Kind: domain.KindGapAnalysis}},
	}}
	queue := &sweepQueue{}
	s := app.NewJobSweeper(repo, queue, time.Hour, time.Minute, time.Minute)

	runOneSweep(t, s)

	require.Equal(t, []string{"job-9"}, repo.failed)
	require.Len(t, repo.failMsgs, 1)
	assert.Contains(t, repo.failMsgs[0], "marked failed by sweeper")
	assert.Empty(t, queue.payloads)
}

func TestSweeper_ListErrorTolerated(t *testing.T) {
	t.Parallel()
	repo := &sweepRepo{listErr: errors.New("store offline")}
	queue := &sweepQueue{}
	s := app.NewJobSweeper(repo, queue, time.Hour, time.Minute, time.Minute)

	runOneSweep(t, s)

	assert.Empty(t, queue.payloads)
	assert.Empty(t, repo.failed)
}

func TestSweeper_EnqueueErrorSkipsJob(t *testing.T) {
	t.Parallel()
	repo := &sweepRepo{stale: map[domain.JobStatus][]domain.Job{
		domain.JobPending: {{ID: "job-1"}},
	}}
	queue := &sweepQueue{err: errors.New("brokers unreachable")}
	s := app.NewJobSweeper(repo, queue, time.Hour, time.Minute, time.Minute)

	runOneSweep(t, s)

	assert.Empty(t, queue.payloads)
}

func TestSweeper_NilRepoYieldsNilSweeper(t *testing.T) {
	t.Parallel()
	var s *app.JobSweeper
	assert.Nil(t, app.NewJobSweeper(nil, &sweepQueue{}, 0, 0, 0))
	// Run on a nil sweeper returns immediately.
	s.Run(context.Background())
}
