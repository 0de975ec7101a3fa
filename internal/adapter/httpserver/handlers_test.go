package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-career-assist/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	"github.com/fairyhunter13/ai-career-assist/internal/usecase"
)

type fakeRepo struct {
	jobs map[string]domain.Job
}

func (r *fakeRepo) Create(_ domain.Context, j domain.Job) (string, error) {
	if r.jobs == nil {
		r.jobs = map[string]domain.Job{}
	}
	j.ID = "job-1"
	j.Status = domain.JobPending
	r.jobs[j.ID] = j
	return j.ID, nil
}

func (r *fakeRepo) Get(_ domain.Context, id string) (domain.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (r *fakeRepo) UpdateStatus(domain.Context, string, domain.JobStatus, *string) error { return nil }
func (r *fakeRepo) UpdateProgress(domain.Context, string, int) error                     { return nil }
func (r *fakeRepo) UpdatePayload(domain.Context, string, domain.PayloadSlot, json.RawMessage) error {
	return nil
}

func (r *fakeRepo) ReadPayload(_ domain.Context, id string, slot domain.PayloadSlot) (json.RawMessage, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Payloads[slot], nil
}

func (r *fakeRepo) ListStale(domain.Context, domain.JobStatus, time.Time, int) ([]domain.Job, error) {
	return nil, nil
}

type fakeQueue struct{}

func (fakeQueue) EnqueueJob(_ domain.Context, p domain.JobTaskPayload) (string, error) {
	return p.JobID, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, string, int64) (bool, time.Duration, error) {
	return false, 30 * time.Second, nil
}

func newTestRouter(srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/jobs", srv.HandleSubmitJob())
	r.Get("/v1/jobs/{id}", srv.HandleGetJob())
	r.Get("/v1/jobs/{id}/payloads/{slot}", srv.HandleGetPayload())
	r.Get("/healthz", srv.HandleHealthz())
	r.Get("/readyz", srv.HandleReadyz())
	return r
}

func newTestServer(repo *fakeRepo) *httpserver.Server {
	return &httpserver.Server{
		Submit:  usecase.NewSubmitService(repo, fakeQueue{}, nil),
		Results: usecase.NewResultService(repo),
	}
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope.Error.Code
}

func TestHandleSubmitJob_Accepted(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{}
	router := newTestRouter(newTestServer(repo))

	body := `{"kind":"cv_parse","input":{"cv_text":"some cv"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body))
	req.Header.Set("X-Owner-Id", "owner-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "owner-1", repo.jobs["job-1"].Owner)
}

func TestHandleSubmitJob_AnonymousOwnerDefault(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{}
	router := newTestRouter(newTestServer(repo))

	body := `{"kind":"cv_parse","input":{"cv_text":"some cv"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "anonymous", repo.jobs["job-1"].Owner)
}

func TestHandleSubmitJob_MalformedBody(t *testing.T) {
	t.Parallel()
	router := newTestRouter(newTestServer(&fakeRepo{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeErrorCode(t, rec.Body.Bytes()))
}

func TestHandleSubmitJob_MissingKind(t *testing.T) {
	t.Parallel()
	router := newTestRouter(newTestServer(&fakeRepo{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"input":{}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSubmitJob_UnknownKind(t *testing.T) {
	t.Parallel()
	router := newTestRouter(newTestServer(&fakeRepo{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"kind":"banana","input":{}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeErrorCode(t, rec.Body.Bytes()))
}

func TestHandleSubmitJob_RateLimited(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{}
	srv := &httpserver.Server{
		Submit:  usecase.NewSubmitService(repo, fakeQueue{}, denyLimiter{}),
		Results: usecase.NewResultService(repo),
	}
	router := newTestRouter(srv)

	body := `{"kind":"cv_parse","input":{"cv_text":"some cv"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeErrorCode(t, rec.Body.Bytes()))
}

func TestHandleGetJob_SnapshotListsPresentSlots(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	repo := &fakeRepo{jobs: map[string]domain.Job{
		"job-1": {
			ID: "job-1", Kind: domain.KindFullAnalysis, Status: domain.JobCompleted,
			Progress: 100, CreatedAt: now, StartedAt: &now, CompletedAt: &now,
			Payloads: map[domain.PayloadSlot]json.RawMessage{
				domain.SlotExtractor: json.RawMessage(`{}`),
				domain.SlotAnalyzer:  json.RawMessage(`{"success":true}`),
			},
		},
	}}
	router := newTestRouter(newTestServer(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status   string   `json:"status"`
		Progress int      `json:"progress"`
		Payloads []string `json:"payloads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, []string{"extractor", "analyzer"}, resp.Payloads)
}

func TestHandleGetJob_NotFound(t *testing.T) {
	t.Parallel()
	router := newTestRouter(newTestServer(&fakeRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeErrorCode(t, rec.Body.Bytes()))
}

func TestHandleGetJob_InvalidID(t *testing.T) {
	t.Parallel()
	router := newTestRouter(newTestServer(&fakeRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+strings.Repeat("x", 150), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetPayload_RawBytesPassThrough(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{jobs: map[string]domain.Job{
		"job-1": {ID: "job-1", Payloads: map[domain.PayloadSlot]json.RawMessage{
			domain.SlotAnalyzer: json.RawMessage(`{"gap_analysis":{"match_score":0.8}}`),
		}},
	}}
	router := newTestRouter(newTestServer(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/payloads/analyzer", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"gap_analysis":{"match_score":0.8}}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestHandleGetPayload_AbsentSlot(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{jobs: map[string]domain.Job{"job-1": {ID: "job-1"}}}
	router := newTestRouter(newTestServer(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/payloads/interviewer", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetPayload_UnknownSlot(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{jobs: map[string]domain.Job{"job-1": {ID: "job-1"}}}
	router := newTestRouter(newTestServer(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/payloads/mystery", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()
	router := newTestRouter(newTestServer(&fakeRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyz_AllChecksPass(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeRepo{})
	srv.DBCheck = func(context.Context) error { return nil }
	srv.QueueCheck = func(context.Context) error { return nil }
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Ready bool `json:"ready"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Ready)
}

func TestHandleReadyz_FailingDependency(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeRepo{})
	srv.DBCheck = func(context.Context) error { return errors.New("pool exhausted") }
	srv.QueueCheck = func(context.Context) error { return nil }
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "pool exhausted")
}
