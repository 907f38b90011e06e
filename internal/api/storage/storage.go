package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aidekit/aide-be/internal/api/model"
	"github.com/aidekit/aide-be/internal/queue"
	"github.com/aidekit/aide-be/internal/worker/domain"
	"github.com/aidekit/aide-be/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreateJob records a job in the queued state. Satisfies the producer's
// JobRecorder contract.
func (s *Storage) CreateJob(ctx context.Context, jobID string, jobType queue.JobType, payload json.RawMessage, owner string) error {
	query := `
		INSERT INTO jobs (
			job_id, job_type, payload, owner,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, NOW(), NOW()
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		jobID,
		string(jobType),
		payload,
		owner,
		string(domain.StatusQueued),
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `
		SELECT
			job_id, job_type, payload, owner, status,
			result, error_message, created_at, updated_at, completed_at
		FROM jobs
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// CancelJob moves a non-terminal job to cancelled. This is the only
// path into the cancelled state.
func (s *Storage) CancelJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2
		  AND status IN ($3, $4)
	`

	res, err := s.db.ExecContext(ctx, query,
		string(domain.StatusCancelled),
		jobID,
		string(domain.StatusQueued),
		string(domain.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either missing or already terminal; distinguish for the API.
		if _, gerr := s.GetJobByID(ctx, jobID); gerr != nil {
			return gerr
		}
		return domain.ErrJobTerminal
	}

	return nil
}

type JobFilter struct {
	Owner    string
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `
        SELECT
            job_id, job_type, payload, owner, status,
            result, error_message, created_at, updated_at, completed_at
        FROM jobs
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.Owner != "" {
		query += fmt.Sprintf(" AND owner = $%d", argIdx)
		args = append(args, filter.Owner)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
