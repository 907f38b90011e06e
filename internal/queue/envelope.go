package queue

import "encoding/json"

// JobType identifies the kind of background work an envelope carries.
// Each job type has its own topic so slow classifications cannot delay
// fast ones.
type JobType string

const (
	JobTypeImageTag       JobType = "image_tag"
	JobTypeIntentClassify JobType = "intent_classify"
	JobTypeFollowup       JobType = "followup"
	JobTypeTaskMatch      JobType = "task_match"
	JobTypeEmailExtract   JobType = "email_extract"
)

// JobTypes lists every known job type. Topology setup and handler
// registration iterate over this.
var JobTypes = []JobType{
	JobTypeImageTag,
	JobTypeIntentClassify,
	JobTypeFollowup,
	JobTypeTaskMatch,
	JobTypeEmailExtract,
}

// IsValid reports whether jt is one of the known job types.
func (jt JobType) IsValid() bool {
	switch jt {
	case JobTypeImageTag, JobTypeIntentClassify, JobTypeFollowup, JobTypeTaskMatch, JobTypeEmailExtract:
		return true
	}
	return false
}

// MessageType identifies the kind of notification an envelope carries
// on the notification topic.
type MessageType string

const (
	MessageTypeImageTagResult MessageType = "image_tag_result"
	MessageTypeIntentResult   MessageType = "intent_result"
	MessageTypeFollowup       MessageType = "followup"
	MessageTypeTaskMatch      MessageType = "task_match_result"
	MessageTypeEmailExtract   MessageType = "email_extract_result"
	MessageTypeJobFailed      MessageType = "job_failed"
	MessageTypeServiceStatus  MessageType = "service_status"
)

const (
	// NotificationTopic is the fan-in topic every producer of
	// user-facing notifications publishes to.
	NotificationTopic = "notifications"

	// DeliveryTopic carries formatted, ready-to-send messages for the
	// external delivery gateway.
	DeliveryTopic = "deliveries"

	// WorkerGroup is the consumer group shared by all dispatch-loop
	// instances on each job topic.
	WorkerGroup = "workers"

	// NotifierGroup is the consumer group shared by all notification
	// consumer instances.
	NotifierGroup = "notifiers"
)

// TopicForJob returns the topic a job type's envelopes are published to.
func TopicForJob(jt JobType) string {
	return "jobs." + string(jt)
}

// JobEnvelope is the wire unit on job topics.
type JobEnvelope struct {
	JobID   string          `json:"job_id"`
	JobType JobType         `json:"job_type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Owner   string          `json:"owner,omitempty"`
}

// NotificationEnvelope is the wire unit on the notification topic.
// Content is message-type-specific structured data.
type NotificationEnvelope struct {
	UserID      string          `json:"user_id"`
	MessageType MessageType     `json:"message_type"`
	Content     json.RawMessage `json:"content,omitempty"`
}
