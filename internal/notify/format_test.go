package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidekit/aide-be/internal/queue"
)

func TestDefaultFormatters_CoverAllMessageTypes(t *testing.T) {
	formatters := DefaultFormatters()

	for _, mt := range []queue.MessageType{
		queue.MessageTypeImageTagResult,
		queue.MessageTypeIntentResult,
		queue.MessageTypeFollowup,
		queue.MessageTypeTaskMatch,
		queue.MessageTypeEmailExtract,
		queue.MessageTypeJobFailed,
		queue.MessageTypeServiceStatus,
	} {
		assert.Contains(t, formatters, mt)
	}
}

func TestFormatImageTags(t *testing.T) {
	text, err := formatImageTags(json.RawMessage(`{"tags":["receipt","travel"]}`))
	require.NoError(t, err)
	assert.Contains(t, text, "receipt, travel")

	text, err = formatImageTags(json.RawMessage(`{"tags":[]}`))
	require.NoError(t, err)
	assert.Contains(t, text, "no tags")
}

func TestFormatTaskMatch(t *testing.T) {
	text, err := formatTaskMatch(json.RawMessage(`{"task_title":"Book flights"}`))
	require.NoError(t, err)
	assert.Contains(t, text, `"Book flights"`)

	text, err = formatTaskMatch(json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, text, "No matching task")
}

func TestFormatJobFailed(t *testing.T) {
	text, err := formatJobFailed(json.RawMessage(`{"job_type":"email_extract"}`))
	require.NoError(t, err)
	assert.Contains(t, text, "email extract")
}

func TestFormatServiceStatus(t *testing.T) {
	text, err := formatServiceStatus(json.RawMessage(`{"status":"healthy","previous":"unhealthy"}`))
	require.NoError(t, err)
	assert.Contains(t, text, "back online")

	text, err = formatServiceStatus(json.RawMessage(`{"status":"unhealthy","previous":"healthy"}`))
	require.NoError(t, err)
	assert.Contains(t, text, "having trouble")
}

func TestFormatters_RejectMalformedContent(t *testing.T) {
	for name, formatter := range map[string]Formatter{
		"image_tags":     formatImageTags,
		"intent":         formatIntent,
		"followup":       formatFollowup,
		"task_match":     formatTaskMatch,
		"email_extract":  formatEmailExtract,
		"job_failed":     formatJobFailed,
		"service_status": formatServiceStatus,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := formatter(json.RawMessage(`"not an object"`))
			assert.Error(t, err)
		})
	}
}
