package worker

import (
	"context"
	"encoding/json"

	"github.com/aidekit/aide-be/internal/queue"
)

// Result is the structured outcome a handler produces. A nil Result is
// a valid success with nothing to notify the owner about. The "type"
// key, when present, selects the notification message type.
type Result map[string]any

// MessageType returns the notification message type the result should
// be delivered as, or "" when the result carries none.
func (r Result) MessageType() queue.MessageType {
	s, _ := r["type"].(string)
	return queue.MessageType(s)
}

// Handler executes one job type's business logic. It is the only part
// of the dispatch flow allowed to take long, job-specific action (LLM
// calls, entity lookups). Handlers must tolerate duplicate delivery:
// the pipeline is at-least-once.
type Handler interface {
	Handle(ctx context.Context, jobID string, payload json.RawMessage, owner string) (Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, jobID string, payload json.RawMessage, owner string) (Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, jobID string, payload json.RawMessage, owner string) (Result, error) {
	return f(ctx, jobID, payload, owner)
}

// Registry maps each job type to its handler. Populated once at
// startup; read-only afterwards.
type Registry map[queue.JobType]Handler
