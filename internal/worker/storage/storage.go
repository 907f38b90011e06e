package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aidekit/aide-be/internal/health"
	"github.com/aidekit/aide-be/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// UpdateJob transitions a job's status and sets result/error message.
// The dispatch loop never creates or deletes jobs, only updates them.
func (s *Storage) UpdateJob(ctx context.Context, jobID string, status domain.Status, result map[string]any, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1::text,
			result = COALESCE($2, result),
			error_message = $3,
			completed_at = CASE
				WHEN $1::text IN ($4::text, $5::text) THEN NOW()
				ELSE completed_at
			END,
			updated_at = NOW()
		WHERE job_id = $6
	`

	var resultJSON []byte
	var err error
	if result != nil {
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, query, status, resultJSON, errorMessage, domain.StatusCompleted, domain.StatusFailed, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)

	return nil
}

// healthRow is the single persisted health record.
type healthRow struct {
	Status              string       `db:"status"`
	LastCheck           time.Time    `db:"last_check"`
	LastSuccess         sql.NullTime `db:"last_success"`
	LastFailure         sql.NullTime `db:"last_failure"`
	ConsecutiveFailures int          `db:"consecutive_failures"`
}

// HealthStore persists the health monitor's rolling record keyed by
// dependency name. Upserts are atomic, so readers never observe a
// half-written record.
type HealthStore struct {
	db         *sqlx.DB
	dependency string
	logger     *slog.Logger
}

// NewHealthStore creates a HealthStore for one dependency.
func NewHealthStore(db *sqlx.DB, dependency string, logger *slog.Logger) *HealthStore {
	return &HealthStore{
		db:         db,
		dependency: dependency,
		logger:     logger,
	}
}

// Set writes the record with an expiry ttl from now.
func (s *HealthStore) Set(ctx context.Context, record *health.Record, ttl time.Duration) error {
	query := `
		INSERT INTO health_status (
			dependency, status, last_check, last_success, last_failure,
			consecutive_failures, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dependency) DO UPDATE SET
			status = EXCLUDED.status,
			last_check = EXCLUDED.last_check,
			last_success = EXCLUDED.last_success,
			last_failure = EXCLUDED.last_failure,
			consecutive_failures = EXCLUDED.consecutive_failures,
			expires_at = EXCLUDED.expires_at
	`

	_, err := s.db.ExecContext(ctx, query,
		s.dependency,
		string(record.Status),
		record.LastCheck,
		nullTime(record.LastSuccess),
		nullTime(record.LastFailure),
		record.ConsecutiveFailures,
		time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert health record: %w", err)
	}

	return nil
}

// Get returns the record, or nil when it is absent or expired. An
// expired record must never be read as stale healthy.
func (s *HealthStore) Get(ctx context.Context) (*health.Record, error) {
	query := `
		SELECT status, last_check, last_success, last_failure, consecutive_failures
		FROM health_status
		WHERE dependency = $1 AND expires_at > NOW()
	`

	var row healthRow
	err := s.db.GetContext(ctx, &row, query, s.dependency)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get health record: %w", err)
	}

	record := &health.Record{
		Status:              health.Status(row.Status),
		LastCheck:           row.LastCheck,
		ConsecutiveFailures: row.ConsecutiveFailures,
	}
	if row.LastSuccess.Valid {
		record.LastSuccess = row.LastSuccess.Time
	}
	if row.LastFailure.Valid {
		record.LastFailure = row.LastFailure.Time
	}

	return record, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
