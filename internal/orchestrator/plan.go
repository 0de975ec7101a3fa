// Package orchestrator drives queued jobs through their specialist plans and
// settles them in the job store.
package orchestrator

import (
	"fmt"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// Step request types understood by the specialists.
const (
	TypeCV           = "cv"
	TypeJob          = "job"
	TypeGapAnalysis  = "gap_analysis"
	TypeCVRewrite    = "cv_rewrite"
	TypeFullAnalysis = "full_analysis"
	TypeInterview    = "interview_prep"
	TypeAnalytics    = "get_analytics"
)

// Step is one specialist invocation in a plan: which specialist, which
// request type, and which payload slot receives the result.
type Step struct {
	Specialist domain.SpecialistName
	Type       string
	Slot       domain.PayloadSlot
}

// BuildPlan derives the ordered step list for a job. The plan is a pure
// function of kind and input: re-running a redelivered job yields the same
// plan. For full_analysis the extractor steps are conditional, raw text with
// no pre-parsed profile triggers extraction; everything already parsed is
// reused as-is.
func BuildPlan(kind domain.JobKind, input domain.JobInput) ([]Step, error) {
	switch kind {
	case domain.KindCVParse:
		return []Step{{domain.SpecialistExtractor, TypeCV, domain.SlotExtractor}}, nil
	case domain.KindJobParse:
		return []Step{{domain.SpecialistExtractor, TypeJob, domain.SlotExtractor}}, nil
	case domain.KindGapAnalysis:
		return []Step{{domain.SpecialistAnalyzer, TypeGapAnalysis, domain.SlotAnalyzer}}, nil
	case domain.KindCVRewrite:
		return []Step{{domain.SpecialistAnalyzer, TypeCVRewrite, domain.SlotAnalyzer}}, nil
	case domain.KindInterviewPrep:
		return []Step{{domain.SpecialistInterviewer, TypeInterview, domain.SlotInterviewer}}, nil
	case domain.KindGetAnalytics:
		return []Step{{domain.SpecialistCharter, TypeAnalytics, domain.SlotCharter}}, nil
	case domain.KindFullAnalysis:
		var plan []Step
		if input.CVText != "" && len(input.CVProfile) == 0 {
			plan = append(plan, Step{domain.SpecialistExtractor, TypeCV, domain.SlotExtractor})
		}
		if input.JobText != "" && len(input.JobProfile) == 0 {
			plan = append(plan, Step{domain.SpecialistExtractor, TypeJob, domain.SlotExtractor})
		}
		plan = append(plan,
			Step{domain.SpecialistAnalyzer, TypeFullAnalysis, domain.SlotAnalyzer},
			Step{domain.SpecialistInterviewer, TypeInterview, domain.SlotInterviewer},
		)
		return plan, nil
	}
	return nil, fmt.Errorf("unknown kind: %s", kind)
}
