package dto

import "encoding/json"

type CreateJobRequest struct {
	JobType string          `json:"job_type" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
	Owner   string          `json:"owner"`
}

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ListJobsRequest struct {
	Owner    string `form:"owner"`
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string          `json:"job_id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Owner        string          `json:"owner,omitempty"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type HealthResponse struct {
	Status string     `json:"status"`
	LLM    *LLMHealth `json:"llm,omitempty"`
}

type LLMHealth struct {
	Status              string `json:"status"`
	LastCheck           string `json:"last_check,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}
