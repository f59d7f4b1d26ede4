package piapi

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("piapi: api key is required")

// APICallError wraps any transport-level failure (connection refused, timeout,
// TLS) from a single HTTP call. The dispatcher never retries; retrying is the
// poller's decision.
type APICallError struct {
	Err error
}

func (e *APICallError) Error() string {
	return fmt.Sprintf("piapi: api call failed: %v", e.Err)
}

func (e *APICallError) Unwrap() error {
	return e.Err
}

// TaskFailedError reports that the remote service marked the task failed.
// Detail is the remote-supplied error message, passed through verbatim.
type TaskFailedError struct {
	TaskID string
	Detail string
}

func (e *TaskFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("piapi: task %s failed", e.TaskID)
	}
	return fmt.Sprintf("piapi: task %s failed: %s", e.TaskID, e.Detail)
}

// TimeoutError reports that the poll budget ran out before the task reached a
// terminal state.
type TimeoutError struct {
	TaskID  string
	Retries int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("piapi: task %s still not finished after %d status checks", e.TaskID, e.Retries)
}

// RemoteError reports a logical failure delivered inside a well-formed
// response envelope (non-200 envelope code on submit or status lookup).
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("piapi: %s (code %d)", e.Message, e.Code)
}
