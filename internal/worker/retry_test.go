package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryTracker_ShouldRetry(t *testing.T) {
	tracker := NewRetryTracker(3)

	// Before any failure the job is always worth attempting.
	assert.True(t, tracker.ShouldRetry("job-1"))

	tracker.RecordAttempt("job-1")
	assert.True(t, tracker.ShouldRetry("job-1"))

	tracker.RecordAttempt("job-1")
	assert.True(t, tracker.ShouldRetry("job-1"))

	// Third failure exhausts the budget.
	tracker.RecordAttempt("job-1")
	assert.False(t, tracker.ShouldRetry("job-1"))
}

func TestRetryTracker_IndependentJobs(t *testing.T) {
	tracker := NewRetryTracker(2)

	tracker.RecordAttempt("job-a")
	tracker.RecordAttempt("job-a")

	assert.False(t, tracker.ShouldRetry("job-a"))
	assert.True(t, tracker.ShouldRetry("job-b"))
}

func TestRetryTracker_Clear(t *testing.T) {
	tracker := NewRetryTracker(1)

	tracker.RecordAttempt("job-1")
	assert.False(t, tracker.ShouldRetry("job-1"))

	tracker.Clear("job-1")
	assert.True(t, tracker.ShouldRetry("job-1"))
}

func TestNewRetryTracker_DefaultBudget(t *testing.T) {
	tracker := NewRetryTracker(0)

	for i := 0; i < DefaultMaxRetries; i++ {
		assert.True(t, tracker.ShouldRetry("job-1"))
		tracker.RecordAttempt("job-1")
	}

	assert.False(t, tracker.ShouldRetry("job-1"))
}
