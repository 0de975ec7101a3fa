package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-career-assist/internal/config"
	"github.com/fairyhunter13/ai-career-assist/internal/domain"
	"github.com/fairyhunter13/ai-career-assist/internal/usecase"
)

// maxBodyBytes caps submit request bodies; job inputs are text, not uploads.
const maxBodyBytes = 2 << 20

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Submit     usecase.SubmitService
	Results    usecase.ResultService
	DBCheck    func(ctx context.Context) error
	QueueCheck func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

var validate = validator.New()

type submitRequest struct {
	Kind  string          `json:"kind" validate:"required,max=64"`
	Input domain.JobInput `json:"input"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// jobResponse is the public job snapshot. Payload values are fetched through
// the payload endpoint; the snapshot only lists which slots are present.
type jobResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Error       string     `json:"error,omitempty"`
	Payloads    []string   `json:"payloads"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HandleSubmitJob accepts a job and answers 202 with its id. The job is
// durable when the response is written; processing happens asynchronously.
func (s *Server) HandleSubmitJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read body: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		var req submitRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, r, fmt.Errorf("%w: decode body: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		owner := SanitizeOwner(r.Header.Get("X-Owner-Id"))
		if owner == "" {
			owner = "anonymous"
		}

		id, err := s.Submit.Submit(r.Context(), owner, domain.JobKind(req.Kind), req.Input)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, submitResponse{JobID: id, Status: string(domain.JobPending)})
	}
}

// HandleGetJob returns the job snapshot.
func (s *Server) HandleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if v := ValidateJobID(id); !v.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid job id", domain.ErrInvalidArgument), v.Errors)
			return
		}
		job, err := s.Results.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resp := jobResponse{
			ID:          job.ID,
			Kind:        string(job.Kind),
			Status:      string(job.Status),
			Progress:    job.Progress,
			Error:       job.Error,
			Payloads:    presentSlots(job),
			CreatedAt:   job.CreatedAt,
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleGetPayload returns one payload slot verbatim.
func (s *Server) HandleGetPayload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if v := ValidateJobID(id); !v.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid job id", domain.ErrInvalidArgument), v.Errors)
			return
		}
		slot := domain.PayloadSlot(chi.URLParam(r, "slot"))
		value, err := s.Results.Payload(r.Context(), id, slot)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(value)
	}
}

// HandleHealthz is a liveness probe.
func (s *Server) HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleReadyz checks the dependencies the API needs to take traffic.
func (s *Server) HandleReadyz() http.HandlerFunc {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Err  string `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := []struct {
			name string
			fn   func(ctx context.Context) error
		}{
			{"db", s.DBCheck},
			{"queue", s.QueueCheck},
			{"redis", s.RedisCheck},
		}
		out := make([]check, 0, len(checks))
		ready := true
		for _, c := range checks {
			if c.fn == nil {
				continue
			}
			item := check{Name: c.name, OK: true}
			if err := c.fn(ctx); err != nil {
				item.OK = false
				item.Err = err.Error()
				ready = false
			}
			out = append(out, item)
		}
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "checks": out})
	}
}

func presentSlots(job domain.Job) []string {
	slots := []domain.PayloadSlot{
		domain.SlotExtractor, domain.SlotAnalyzer, domain.SlotInterviewer,
		domain.SlotCharter, domain.SlotSummary,
	}
	out := make([]string, 0, len(job.Payloads))
	for _, slot := range slots {
		if len(job.Payloads[slot]) > 0 {
			out = append(out, string(slot))
		}
	}
	return out
}
