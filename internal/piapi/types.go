package piapi

import (
	"encoding/json"
	"strings"
)

// Task statuses as reported by the remote API. The label set is an external
// contract: two endpoint families spell terminal success differently
// ("success" vs "completed") and both must be accepted.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusStaged     = "staged"
	StatusSuccess    = "success"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsSuccessStatus reports whether the remote label marks terminal success.
func IsSuccessStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusSuccess, StatusCompleted:
		return true
	}
	return false
}

// IsFailureStatus reports whether the remote label marks terminal failure.
func IsFailureStatus(status string) bool {
	return strings.ToLower(strings.TrimSpace(status)) == StatusFailed
}

// IsTerminalStatus reports whether no further status changes can occur.
func IsTerminalStatus(status string) bool {
	return IsSuccessStatus(status) || IsFailureStatus(status)
}

// Envelope is the response wrapper returned by every task endpoint. Logical
// failures still arrive inside a well-formed envelope, so callers inspect
// Code/Message rather than the HTTP status line.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *Task  `json:"data"`
}

// Task mirrors the remote job record. Output and Meta stay raw because their
// shape varies per model family; adapters pick out what they need.
type Task struct {
	TaskID   string          `json:"task_id"`
	Model    string          `json:"model,omitempty"`
	TaskType string          `json:"task_type,omitempty"`
	Status   string          `json:"status"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Meta     json.RawMessage `json:"meta,omitempty"`
	Error    *TaskError      `json:"error,omitempty"`
}

// TaskError carries the remote-supplied failure detail verbatim.
type TaskError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	RawData json.RawMessage `json:"raw_message,omitempty"`
}

// Detail returns the best human-readable failure description available.
func (e *TaskError) Detail() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if len(e.RawData) > 0 {
		return string(e.RawData)
	}
	return ""
}

// SubmitRequest is the body of POST /api/v1/task.
type SubmitRequest struct {
	Model    string         `json:"model"`
	TaskType string         `json:"task_type"`
	Input    map[string]any `json:"input"`
	Config   map[string]any `json:"config,omitempty"`
}
