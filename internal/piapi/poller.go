package piapi

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultMaxRetries bounds the poll loop. Long-running media adapters
	// override this per descriptor (30 or 60 checks are common for video).
	DefaultMaxRetries = 20
	// DefaultPollInterval is the fixed sleep between status checks. The
	// remote API gives no retry hints, so the interval stays constant with
	// no jitter or backoff.
	DefaultPollInterval = 3 * time.Second
)

// StatusFetcher is the slice of the client the poller needs. Tests substitute
// a scripted fake.
type StatusFetcher interface {
	GetTask(ctx context.Context, taskID string) (*Task, error)
}

// PollOptions bounds a single polling run.
type PollOptions struct {
	MaxRetries int
	Interval   time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	return o
}

// WaitForTask polls the task status at a fixed interval until it reaches a
// terminal state or the retry budget runs out. Both "success" and "completed"
// count as terminal success; a "failed" observation aborts immediately with
// TaskFailedError and no further status calls. Cancellation via ctx surfaces
// as ctx.Err(), distinct from timeout and failure.
func WaitForTask(ctx context.Context, fetcher StatusFetcher, taskID string, opts PollOptions) (*Task, error) {
	opts = opts.withDefaults()
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		task, err := fetcher.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch {
		case IsSuccessStatus(task.Status):
			return task, nil
		case IsFailureStatus(task.Status):
			return nil, &TaskFailedError{TaskID: taskID, Detail: task.Error.Detail()}
		}
		if attempt == opts.MaxRetries {
			break
		}
		if err := sleep(ctx, opts.Interval); err != nil {
			return nil, fmt.Errorf("piapi: poll aborted: %w", err)
		}
	}
	return nil, &TimeoutError{TaskID: taskID, Retries: opts.MaxRetries}
}

// WaitForTask polls this client until the task finishes. See the package
// function for the terminal-state rules.
func (c *Client) WaitForTask(ctx context.Context, taskID string, opts PollOptions) (*Task, error) {
	return WaitForTask(ctx, c, taskID, opts)
}

// sleep blocks for the given duration or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ StatusFetcher = (*Client)(nil)
