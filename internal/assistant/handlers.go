// Package assistant contains the per-job-type handlers the dispatch
// loop invokes. Each handler turns one queued envelope into an LLM call
// and shapes the result the owner gets notified with.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aidekit/aide-be/internal/llm"
	"github.com/aidekit/aide-be/internal/queue"
	"github.com/aidekit/aide-be/internal/worker"
)

// Generator is the slice of the LLM client the handlers need.
type Generator interface {
	Generate(ctx context.Context, prompt, format string) (string, error)
}

var _ Generator = (*llm.Client)(nil)

// NewRegistry wires one handler per job type.
func NewRegistry(gen Generator, logger *slog.Logger) worker.Registry {
	return worker.Registry{
		queue.JobTypeImageTag:       &imageTagHandler{gen: gen, logger: logger},
		queue.JobTypeIntentClassify: &intentHandler{gen: gen, logger: logger},
		queue.JobTypeFollowup:       &followupHandler{gen: gen, logger: logger},
		queue.JobTypeTaskMatch:      &taskMatchHandler{gen: gen, logger: logger},
		queue.JobTypeEmailExtract:   &emailExtractHandler{gen: gen, logger: logger},
	}
}

// imageTagHandler tags an image caption/description so the memory
// becomes searchable.
type imageTagHandler struct {
	gen    Generator
	logger *slog.Logger
}

func (h *imageTagHandler) Handle(ctx context.Context, jobID string, payload json.RawMessage, owner string) (worker.Result, error) {
	var p struct {
		MemoryID    string `json:"memory_id"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid image_tag payload: %w", err)
	}

	prompt := fmt.Sprintf(
		"List up to five short lowercase tags describing this image, as a JSON object {\"tags\": [...]}.\n\nImage description: %s",
		p.Description,
	)
	raw, err := h.gen.Generate(ctx, prompt, "json")
	if err != nil {
		return nil, fmt.Errorf("image tagging failed: %w", err)
	}

	var out struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("model returned malformed tags: %w", err)
	}

	h.logger.Debug("Image tagged",
		slog.String("job_id", jobID),
		slog.Int("tag_count", len(out.Tags)),
	)

	return worker.Result{
		"type":      string(queue.MessageTypeImageTagResult),
		"memory_id": p.MemoryID,
		"tags":      out.Tags,
	}, nil
}

// intentHandler classifies a free-form note into one of the assistant's
// entity kinds.
type intentHandler struct {
	gen    Generator
	logger *slog.Logger
}

func (h *intentHandler) Handle(ctx context.Context, jobID string, payload json.RawMessage, owner string) (worker.Result, error) {
	var p struct {
		MemoryID string `json:"memory_id"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid intent_classify payload: %w", err)
	}

	prompt := fmt.Sprintf(
		"Classify the note into exactly one of: memory, task, reminder, event. Answer as {\"intent\": \"...\"}.\n\nNote: %s",
		p.Text,
	)
	raw, err := h.gen.Generate(ctx, prompt, "json")
	if err != nil {
		return nil, fmt.Errorf("intent classification failed: %w", err)
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("model returned malformed intent: %w", err)
	}

	intent := strings.ToLower(strings.TrimSpace(out.Intent))
	switch intent {
	case "memory", "task", "reminder", "event":
	default:
		return nil, fmt.Errorf("model returned unknown intent %q", out.Intent)
	}

	return worker.Result{
		"type":      string(queue.MessageTypeIntentResult),
		"memory_id": p.MemoryID,
		"intent":    intent,
	}, nil
}

// followupHandler drafts a follow-up question for a note that needs
// clarification.
type followupHandler struct {
	gen    Generator
	logger *slog.Logger
}

func (h *followupHandler) Handle(ctx context.Context, jobID string, payload json.RawMessage, owner string) (worker.Result, error) {
	var p struct {
		MemoryID string `json:"memory_id"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid followup payload: %w", err)
	}

	text, err := h.gen.Generate(ctx,
		fmt.Sprintf("Write one short, friendly follow-up question about this note. Plain text only.\n\nNote: %s", p.Text),
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("followup generation failed: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		// Nothing worth asking: a nil result completes the job with no
		// notification.
		return nil, nil
	}

	return worker.Result{
		"type":      string(queue.MessageTypeFollowup),
		"memory_id": p.MemoryID,
		"text":      text,
	}, nil
}

// taskMatchHandler checks whether a note refers to one of the owner's
// open tasks.
type taskMatchHandler struct {
	gen    Generator
	logger *slog.Logger
}

func (h *taskMatchHandler) Handle(ctx context.Context, jobID string, payload json.RawMessage, owner string) (worker.Result, error) {
	var p struct {
		MemoryID string   `json:"memory_id"`
		Text     string   `json:"text"`
		Tasks    []string `json:"tasks"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid task_match payload: %w", err)
	}

	if len(p.Tasks) == 0 {
		return worker.Result{
			"type":      string(queue.MessageTypeTaskMatch),
			"memory_id": p.MemoryID,
		}, nil
	}

	prompt := fmt.Sprintf(
		"Which of these tasks does the note refer to, if any? Answer as {\"task_title\": \"...\"} with an empty string for no match.\n\nTasks:\n- %s\n\nNote: %s",
		strings.Join(p.Tasks, "\n- "), p.Text,
	)
	raw, err := h.gen.Generate(ctx, prompt, "json")
	if err != nil {
		return nil, fmt.Errorf("task matching failed: %w", err)
	}

	var out struct {
		TaskTitle string `json:"task_title"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("model returned malformed match: %w", err)
	}

	return worker.Result{
		"type":       string(queue.MessageTypeTaskMatch),
		"memory_id":  p.MemoryID,
		"task_title": out.TaskTitle,
	}, nil
}

// emailExtractHandler pulls actionable items out of a forwarded email.
type emailExtractHandler struct {
	gen    Generator
	logger *slog.Logger
}

func (h *emailExtractHandler) Handle(ctx context.Context, jobID string, payload json.RawMessage, owner string) (worker.Result, error) {
	var p struct {
		MessageID string `json:"message_id"`
		Subject   string `json:"subject"`
		Body      string `json:"body"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid email_extract payload: %w", err)
	}

	prompt := fmt.Sprintf(
		"Extract actionable items from this email as {\"items\": [{\"title\": \"...\", \"due\": \"...\"}]}.\n\nSubject: %s\n\n%s",
		p.Subject, p.Body,
	)
	raw, err := h.gen.Generate(ctx, prompt, "json")
	if err != nil {
		return nil, fmt.Errorf("email extraction failed: %w", err)
	}

	var out struct {
		Items []map[string]string `json:"items"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("model returned malformed items: %w", err)
	}

	return worker.Result{
		"type":       string(queue.MessageTypeEmailExtract),
		"message_id": p.MessageID,
		"subject":    p.Subject,
		"count":      len(out.Items),
		"items":      out.Items,
	}, nil
}
