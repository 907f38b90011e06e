package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidekit/aide-be/shared/logger"
)

type fakeBus struct {
	published  map[string][][]byte
	publishErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (b *fakeBus) CreateGroup(ctx context.Context, topic, group string) error { return nil }

func (b *fakeBus) Publish(ctx context.Context, topic string, body []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published[topic] = append(b.published[topic], body)
	return nil
}

func (b *fakeBus) Consume(ctx context.Context, topic, group, consumer string, maxCount int, blockTimeout time.Duration) ([]Message, error) {
	return nil, nil
}

func (b *fakeBus) Ack(topic, group string, id uint64) error  { return nil }
func (b *fakeBus) Nack(topic, group string, id uint64) error { return nil }

type recordedJob struct {
	jobID   string
	jobType JobType
	owner   string
}

type fakeRecorder struct {
	jobs      []recordedJob
	createErr error
}

func (r *fakeRecorder) CreateJob(ctx context.Context, jobID string, jobType JobType, payload json.RawMessage, owner string) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.jobs = append(r.jobs, recordedJob{jobID: jobID, jobType: jobType, owner: owner})
	return nil
}

func TestProducer_Enqueue(t *testing.T) {
	bus := newFakeBus()
	recorder := &fakeRecorder{}
	producer := NewProducer(bus, recorder, logger.NewDefault().Logger)

	jobID, err := producer.Enqueue(context.Background(), JobTypeImageTag, json.RawMessage(`{"memory_id":"m1"}`), "42")
	require.NoError(t, err)

	_, err = uuid.Parse(jobID)
	assert.NoError(t, err, "job id should be a uuid")

	// The row is recorded and the envelope lands on the job-type topic.
	require.Len(t, recorder.jobs, 1)
	assert.Equal(t, jobID, recorder.jobs[0].jobID)
	assert.Equal(t, JobTypeImageTag, recorder.jobs[0].jobType)
	assert.Equal(t, "42", recorder.jobs[0].owner)

	bodies := bus.published[TopicForJob(JobTypeImageTag)]
	require.Len(t, bodies, 1)

	var envelope JobEnvelope
	require.NoError(t, json.Unmarshal(bodies[0], &envelope))
	assert.Equal(t, jobID, envelope.JobID)
	assert.Equal(t, JobTypeImageTag, envelope.JobType)
	assert.Equal(t, "42", envelope.Owner)
	assert.JSONEq(t, `{"memory_id":"m1"}`, string(envelope.Payload))
}

func TestProducer_EnqueueRejectsUnknownJobType(t *testing.T) {
	bus := newFakeBus()
	recorder := &fakeRecorder{}
	producer := NewProducer(bus, recorder, logger.NewDefault().Logger)

	_, err := producer.Enqueue(context.Background(), "mystery", nil, "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
	assert.Empty(t, recorder.jobs)
	assert.Empty(t, bus.published)
}

func TestProducer_EnqueueRecordFailureDoesNotPublish(t *testing.T) {
	bus := newFakeBus()
	recorder := &fakeRecorder{createErr: errors.New("db down")}
	producer := NewProducer(bus, recorder, logger.NewDefault().Logger)

	_, err := producer.Enqueue(context.Background(), JobTypeFollowup, nil, "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record job")
	assert.Empty(t, bus.published)
}

func TestProducer_EnqueuePublishFailure(t *testing.T) {
	bus := newFakeBus()
	bus.publishErr = errors.New("broker unavailable")
	recorder := &fakeRecorder{}
	producer := NewProducer(bus, recorder, logger.NewDefault().Logger)

	_, err := producer.Enqueue(context.Background(), JobTypeFollowup, nil, "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish job envelope")

	// The queued row exists even though the publish failed; the caller
	// sees the error and may retry with a fresh job.
	assert.Len(t, recorder.jobs, 1)
}
