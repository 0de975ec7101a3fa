package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// JobRepo persists and loads jobs from PostgreSQL using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// slotColumns maps payload slots to their jobs-table columns. The whitelist
// keeps slot names out of SQL string building.
var slotColumns = map[domain.PayloadSlot]string{
	domain.SlotExtractor:   "extractor_payload",
	domain.SlotAnalyzer:    "analyzer_payload",
	domain.SlotInterviewer: "interviewer_payload",
	domain.SlotCharter:     "charter_payload",
	domain.SlotSummary:     "summary_payload",
}

const jobColumns = `id, owner, kind, status, progress, input,
	extractor_payload, analyzer_payload, interviewer_payload, charter_payload, summary_payload,
	COALESCE(error,''), created_at, started_at, completed_at, updated_at`

// Create inserts a new job in pending state and returns its id.
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	input, err := json.Marshal(j.Input)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w: %v", domain.ErrInvalidArgument, err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO jobs (id, owner, kind, status, progress, input, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, j.Owner, j.Kind, domain.JobPending, 0, input, now, now); err != nil {
		return "", fmt.Errorf("op=job.create: %w: %v", domain.ErrStoreUnavailable, err)
	}
	return id, nil
}

// Get loads a job snapshot by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w: %v", domain.ErrStoreUnavailable, err)
	}
	return j, nil
}

// UpdateStatus applies one lifecycle transition. The allowed source state is
// encoded in the WHERE clause so concurrent workers race on a single
// conditional UPDATE; the loser sees zero rows and resolves to either an
// idempotent no-op or ErrIllegalTransition.
func (r *JobRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.UpdateStatus")
	defer span.End()

	now := time.Now().UTC()
	var tag pgconn.CommandTag
	var err error
	switch status {
	case domain.JobProcessing:
		tag, err = r.Pool.Exec(ctx,
			`UPDATE jobs SET status=$2, started_at=$3, updated_at=$3 WHERE id=$1 AND status=$4`,
			id, status, now, domain.JobPending)
	case domain.JobCompleted:
		tag, err = r.Pool.Exec(ctx,
			`UPDATE jobs SET status=$2, completed_at=$3, updated_at=$3 WHERE id=$1 AND status=$4`,
			id, status, now, domain.JobProcessing)
	case domain.JobFailed:
		errVal := ""
		if errMsg != nil {
			errVal = *errMsg
		}
		tag, err = r.Pool.Exec(ctx,
			`UPDATE jobs SET status=$2, error=$3, completed_at=$4, updated_at=$4 WHERE id=$1 AND status=$5`,
			id, status, errVal, now, domain.JobProcessing)
	default:
		return fmt.Errorf("op=job.update_status: %w: %s is not a transition target", domain.ErrIllegalTransition, status)
	}
	if err != nil {
		return fmt.Errorf("op=job.update_status: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return r.resolveRejectedTransition(ctx, id, status)
	}
	return nil
}

// resolveRejectedTransition distinguishes a missing record, an idempotent
// repeat of the current state, and a genuinely illegal transition.
func (r *JobRepo) resolveRejectedTransition(ctx domain.Context, id string, target domain.JobStatus) error {
	var current domain.JobStatus
	row := r.Pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id=$1`, id)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("op=job.update_status: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=job.update_status: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if current == target {
		return nil
	}
	return fmt.Errorf("op=job.update_status: %w: %s -> %s", domain.ErrIllegalTransition, current, target)
}

// UpdateProgress stores the advisory progress value for an in-flight job.
// Zero rows (terminal or missing record) is not an error: progress is
// best-effort.
func (r *JobRepo) UpdateProgress(ctx domain.Context, id string, progress int) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.UpdateProgress")
	defer span.End()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := r.Pool.Exec(ctx,
		`UPDATE jobs SET progress=$2, updated_at=$3 WHERE id=$1 AND status=$4`,
		id, progress, time.Now().UTC(), domain.JobProcessing)
	if err != nil {
		return fmt.Errorf("op=job.update_progress: %w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// UpdatePayload atomically replaces one payload slot. Writes are rejected
// once the job is terminal; re-runs overwrite with equivalent values.
func (r *JobRepo) UpdatePayload(ctx domain.Context, id string, slot domain.PayloadSlot, value json.RawMessage) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.UpdatePayload")
	defer span.End()
	col, ok := slotColumns[slot]
	if !ok {
		return fmt.Errorf("op=job.update_payload: %w: unknown slot %q", domain.ErrInvalidArgument, slot)
	}
	if len(value) == 0 {
		value = json.RawMessage(`{}`)
	}
	q := fmt.Sprintf(`UPDATE jobs SET %s=$2, updated_at=$3 WHERE id=$1 AND status NOT IN ($4,$5)`, col)
	tag, err := r.Pool.Exec(ctx, q, id, value, time.Now().UTC(), domain.JobCompleted, domain.JobFailed)
	if err != nil {
		return fmt.Errorf("op=job.update_payload: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		var current domain.JobStatus
		row := r.Pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id=$1`, id)
		if scanErr := row.Scan(&current); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return fmt.Errorf("op=job.update_payload: %w", domain.ErrNotFound)
			}
			return fmt.Errorf("op=job.update_payload: %w: %v", domain.ErrStoreUnavailable, scanErr)
		}
		return fmt.Errorf("op=job.update_payload: %w: payload write in state %s", domain.ErrIllegalTransition, current)
	}
	return nil
}

// ReadPayload returns one payload slot, or nil when the slot is absent.
func (r *JobRepo) ReadPayload(ctx domain.Context, id string, slot domain.PayloadSlot) (json.RawMessage, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ReadPayload")
	defer span.End()
	col, ok := slotColumns[slot]
	if !ok {
		return nil, fmt.Errorf("op=job.read_payload: %w: unknown slot %q", domain.ErrInvalidArgument, slot)
	}
	var value []byte
	row := r.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM jobs WHERE id=$1`, col), id)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("op=job.read_payload: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=job.read_payload: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if len(value) == 0 {
		return nil, nil
	}
	return json.RawMessage(value), nil
}

// ListStale returns jobs in the given status whose last update precedes
// olderThan, oldest first. Used by the sweeper.
func (r *JobRepo) ListStale(ctx domain.Context, status domain.JobStatus, olderThan time.Time, limit int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ListStale")
	defer span.End()
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3`,
		status, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("op=job.list_stale: %w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_stale: %w: %v", domain.ErrStoreUnavailable, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_stale: %w: %v", domain.ErrStoreUnavailable, err)
	}
	return out, nil
}

// scanJob reads one row in jobColumns order.
func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	var input []byte
	slots := make([][]byte, 5)
	if err := row.Scan(
		&j.ID, &j.Owner, &j.Kind, &j.Status, &j.Progress, &input,
		&slots[0], &slots[1], &slots[2], &slots[3], &slots[4],
		&j.Error, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	); err != nil {
		return domain.Job{}, err
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &j.Input); err != nil {
			return domain.Job{}, fmt.Errorf("decode input: %w", err)
		}
	}
	order := []domain.PayloadSlot{
		domain.SlotExtractor, domain.SlotAnalyzer, domain.SlotInterviewer,
		domain.SlotCharter, domain.SlotSummary,
	}
	j.Payloads = make(map[domain.PayloadSlot]json.RawMessage)
	for i, slot := range order {
		if len(slots[i]) > 0 {
			j.Payloads[slot] = json.RawMessage(slots[i])
		}
	}
	return j, nil
}
