package domain

import "errors"

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusCancelled is reachable only through the API, never from the
	// dispatch loop.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further status transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when a transition is attempted on a job
	// already in a terminal state
	ErrJobTerminal = errors.New("job is in a terminal state")
)
