package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobType_IsValid(t *testing.T) {
	for _, jt := range JobTypes {
		assert.True(t, jt.IsValid(), "job type %q should be valid", jt)
	}

	assert.False(t, JobType("").IsValid())
	assert.False(t, JobType("mystery").IsValid())
}

func TestTopicForJob(t *testing.T) {
	assert.Equal(t, "jobs.image_tag", TopicForJob(JobTypeImageTag))
	assert.Equal(t, "jobs.intent_classify", TopicForJob(JobTypeIntentClassify))
}

func TestConsumerName_Unique(t *testing.T) {
	a := ConsumerName()
	b := ConsumerName()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b, "consumer names must differ across calls")
}
