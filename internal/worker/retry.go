package worker

// RetryTracker counts failed attempts per job id and enforces the retry
// ceiling. It is pure in-memory bookkeeping scoped to one running
// dispatcher: entries do not survive a process restart, and each worker
// replica sharing a consumer group owns an independent tracker. Only
// the dispatcher goroutine that owns it touches the map, so no locking.
type RetryTracker struct {
	attempts   map[string]int
	maxRetries int
}

// DefaultMaxRetries is the retry ceiling used when none is configured.
const DefaultMaxRetries = 3

// NewRetryTracker creates a tracker with the given ceiling. A
// non-positive ceiling falls back to DefaultMaxRetries.
func NewRetryTracker(maxRetries int) *RetryTracker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RetryTracker{
		attempts:   make(map[string]int),
		maxRetries: maxRetries,
	}
}

// ShouldRetry reports whether the job's recorded attempts are still
// below the ceiling.
func (t *RetryTracker) ShouldRetry(jobID string) bool {
	return t.attempts[jobID] < t.maxRetries
}

// RecordAttempt increments the job's attempt count, creating the entry
// at 1 if absent.
func (t *RetryTracker) RecordAttempt(jobID string) {
	t.attempts[jobID]++
}

// Clear removes the job's entry. Called on any terminal outcome.
func (t *RetryTracker) Clear(jobID string) {
	delete(t.attempts, jobID)
}
