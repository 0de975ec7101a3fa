// Package stub provides fast deterministic specialists for local runs and
// tests. Responses depend only on the request type, so repeated executions
// of the same job produce identical payloads.
package stub

import (
	"encoding/json"
	"time"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// Specialist is a deterministic in-process specialist.
type Specialist struct {
	name    domain.SpecialistName
	latency time.Duration
}

// New constructs a stub specialist with a small simulated latency.
func New(name domain.SpecialistName) *Specialist {
	return &Specialist{name: name, latency: 10 * time.Millisecond}
}

// NewSet returns a full stub specialist set.
func NewSet() domain.SpecialistSet {
	return domain.SpecialistSet{
		Extractor:   New(domain.SpecialistExtractor),
		Analyzer:    New(domain.SpecialistAnalyzer),
		Interviewer: New(domain.SpecialistInterviewer),
		Charter:     New(domain.SpecialistCharter),
	}
}

// Name returns the specialist identity.
func (s *Specialist) Name() domain.SpecialistName { return s.name }

// Invoke returns a canned response shaped like the real specialist output
// for the request type.
func (s *Specialist) Invoke(_ domain.Context, req domain.SpecialistRequest) (domain.SpecialistResponse, error) {
	time.Sleep(s.latency)
	switch s.name {
	case domain.SpecialistExtractor:
		return s.extract(req), nil
	case domain.SpecialistAnalyzer:
		return s.analyze(req), nil
	case domain.SpecialistInterviewer:
		return domain.SpecialistResponse{
			Success: true,
			InterviewPack: json.RawMessage(`{"questions":[` +
				`{"question":"Walk me through a service you designed end to end.","focus":"architecture"},` +
				`{"question":"How do you approach closing a skills gap quickly?","focus":"growth"}],` +
				`"talking_points":["distributed systems experience","team mentoring"]}`),
		}, nil
	case domain.SpecialistCharter:
		return domain.SpecialistResponse{
			Success: true,
			Charts: json.RawMessage(`{"applications_over_time":{"type":"line","points":[[1,2],[2,5],[3,4]]},` +
				`"status_breakdown":{"type":"pie","segments":{"applied":6,"interview":3,"offer":1}}}`),
		}, nil
	}
	return domain.SpecialistResponse{Success: false, Error: "unknown specialist"}, nil
}

func (s *Specialist) extract(req domain.SpecialistRequest) domain.SpecialistResponse {
	switch req.Type {
	case "job":
		return domain.SpecialistResponse{
			Success: true,
			Profile: json.RawMessage(`{"title":"Senior Backend Engineer",` +
				`"required_skills":["go","postgresql","kafka"],"nice_to_have":["kubernetes"],` +
				`"seniority":"senior"}`),
		}
	default:
		return domain.SpecialistResponse{
			Success: true,
			Profile: json.RawMessage(`{"name":"Candidate",` +
				`"skills":["go","postgresql","docker"],"years_experience":6,` +
				`"roles":["backend engineer"]}`),
		}
	}
}

func (s *Specialist) analyze(req domain.SpecialistRequest) domain.SpecialistResponse {
	switch req.Type {
	case "gap_analysis":
		return domain.SpecialistResponse{
			Success:     true,
			GapAnalysis: json.RawMessage(`{"match_score":0.78,"missing_skills":["kafka"],"strengths":["go","postgresql"]}`),
		}
	case "cv_rewrite":
		return domain.SpecialistResponse{
			Success:   true,
			CVRewrite: json.RawMessage(`{"summary":"Backend engineer with six years of Go and PostgreSQL experience.","highlights":["led service migration","cut p99 latency 40%"]}`),
		}
	default:
		return domain.SpecialistResponse{
			Success:     true,
			GapAnalysis: json.RawMessage(`{"match_score":0.78,"missing_skills":["kafka"],"strengths":["go","postgresql"]}`),
			CVRewrite:   json.RawMessage(`{"summary":"Backend engineer with six years of Go and PostgreSQL experience.","highlights":["led service migration","cut p99 latency 40%"]}`),
			Evaluation:  json.RawMessage(`{"verdict":"strong match","confidence":0.82}`),
		}
	}
}
