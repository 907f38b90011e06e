package model

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Job is the persisted job row. The dispatch loop only ever updates
// status, result, and error_message; everything else is set at
// creation.
type Job struct {
	JobID        string          `db:"job_id"`
	JobType      string          `db:"job_type"`
	Payload      json.RawMessage `db:"payload"`
	Owner        string          `db:"owner"`
	Status       string          `db:"status"`
	Result       json.RawMessage `db:"result"`
	ErrorMessage string          `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
	CompletedAt  sql.NullTime    `db:"completed_at"`
}
