package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aidekit/aide-be/internal/queue"
)

// Formatter turns message-type-specific content into the text the
// delivery surface sends.
type Formatter func(content json.RawMessage) (string, error)

// Formatters maps each message type to its formatter. Unknown types are
// skipped by the consumer, not failed.
type Formatters map[queue.MessageType]Formatter

// DefaultFormatters returns the formatter registry for every message
// type the pipeline produces.
func DefaultFormatters() Formatters {
	return Formatters{
		queue.MessageTypeImageTagResult: formatImageTags,
		queue.MessageTypeIntentResult:   formatIntent,
		queue.MessageTypeFollowup:       formatFollowup,
		queue.MessageTypeTaskMatch:      formatTaskMatch,
		queue.MessageTypeEmailExtract:   formatEmailExtract,
		queue.MessageTypeJobFailed:      formatJobFailed,
		queue.MessageTypeServiceStatus:  formatServiceStatus,
	}
}

func formatImageTags(content json.RawMessage) (string, error) {
	var c struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("bad image_tag_result content: %w", err)
	}
	if len(c.Tags) == 0 {
		return "Your image was saved, but no tags were detected.", nil
	}
	return fmt.Sprintf("Tagged your image: %s", strings.Join(c.Tags, ", ")), nil
}

func formatIntent(content json.RawMessage) (string, error) {
	var c struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("bad intent_result content: %w", err)
	}
	return fmt.Sprintf("Filed your note under %q.", c.Intent), nil
}

func formatFollowup(content json.RawMessage) (string, error) {
	var c struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("bad followup content: %w", err)
	}
	return c.Text, nil
}

func formatTaskMatch(content json.RawMessage) (string, error) {
	var c struct {
		TaskTitle string `json:"task_title"`
	}
	if err := json.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("bad task_match_result content: %w", err)
	}
	if c.TaskTitle == "" {
		return "No matching task found for your note.", nil
	}
	return fmt.Sprintf("Linked your note to task %q.", c.TaskTitle), nil
}

func formatEmailExtract(content json.RawMessage) (string, error) {
	var c struct {
		Subject string `json:"subject"`
		Count   int    `json:"count"`
	}
	if err := json.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("bad email_extract_result content: %w", err)
	}
	return fmt.Sprintf("Extracted %d item(s) from %q.", c.Count, c.Subject), nil
}

func formatJobFailed(content json.RawMessage) (string, error) {
	var c struct {
		JobType string `json:"job_type"`
	}
	if err := json.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("bad job_failed content: %w", err)
	}
	return fmt.Sprintf("Sorry, %s processing failed after several attempts.", strings.ReplaceAll(c.JobType, "_", " ")), nil
}

func formatServiceStatus(content json.RawMessage) (string, error) {
	var c struct {
		Status   string `json:"status"`
		Previous string `json:"previous"`
	}
	if err := json.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("bad service_status content: %w", err)
	}
	if c.Status == "healthy" {
		return "The assistant is back online.", nil
	}
	return fmt.Sprintf("The assistant is having trouble right now (%s). Some features may respond late.", c.Status), nil
}
