package usecase

import (
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// ResultService reads job snapshots and payload slots.
type ResultService struct {
	Jobs domain.JobRepository
}

// NewResultService constructs a ResultService with the given repo.
func NewResultService(jobs domain.JobRepository) ResultService { return ResultService{Jobs: jobs} }

// Get returns the job snapshot.
func (s ResultService) Get(ctx domain.Context, id string) (domain.Job, error) {
	return s.Jobs.Get(ctx, id)
}

// Payload returns one payload slot. An absent slot on an existing job maps to
// ErrNotFound so the API can answer 404 without a sentinel value.
func (s ResultService) Payload(ctx domain.Context, id string, slot domain.PayloadSlot) (json.RawMessage, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("%w: unknown slot: %s", domain.ErrInvalidArgument, slot)
	}
	value, err := s.Jobs.ReadPayload(ctx, id, slot)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: payload %s not present", domain.ErrNotFound, slot)
	}
	return value, nil
}
