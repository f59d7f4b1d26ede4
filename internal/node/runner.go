package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediabridge/internal/catalog"
	"mediabridge/internal/infra"
	"mediabridge/internal/piapi"
)

// TaskAPI is the slice of the piapi client the runner needs. Tests substitute
// a scripted fake.
type TaskAPI interface {
	SubmitTask(ctx context.Context, req piapi.SubmitRequest) (*piapi.Task, error)
	GetTask(ctx context.Context, taskID string) (*piapi.Task, error)
	CallRaw(ctx context.Context, req piapi.Request) (io.ReadCloser, error)
}

// Recorder persists finished runs. Optional; a nil recorder disables history.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}

// Archiver copies generated media to durable storage. Optional.
type Archiver interface {
	Archive(ctx context.Context, runID string, urls []string) ([]string, error)
}

// Run is the outcome of one adapter invocation.
type Run struct {
	ID        string          `json:"id"`
	Node      string          `json:"node"`
	TaskID    string          `json:"task_id,omitempty"`
	Status    string          `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	Content   string          `json:"content,omitempty"`
	URLs      []string        `json:"urls,omitempty"`
	Archived  []string        `json:"archived,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
}

// Runner executes adapter descriptors against the remote API.
type Runner struct {
	api      TaskAPI
	catalog  *catalog.Catalog
	recorder Recorder
	archiver Archiver
	logger   *infra.Logger
}

// Options configures a Runner. API and Catalog are required.
type Options struct {
	API      TaskAPI
	Catalog  *catalog.Catalog
	Recorder Recorder
	Archiver Archiver
	Logger   *infra.Logger
}

// ErrUnknownNode is returned when no descriptor matches the requested name.
var ErrUnknownNode = errors.New("node: unknown node")

// NewRunner constructs a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.API == nil {
		return nil, errors.New("node: api client is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("node: catalog is required")
	}
	return &Runner{
		api:      opts.API,
		catalog:  opts.Catalog,
		recorder: opts.Recorder,
		archiver: opts.Archiver,
		logger:   opts.Logger,
	}, nil
}

// Execute runs the named adapter with the given parameter values. When wait
// is false a task adapter returns right after submission with the remote
// task_id and initial status; otherwise the runner polls to completion using
// the descriptor's budget. Chat adapters always complete synchronously.
func (r *Runner) Execute(ctx context.Context, name string, params map[string]any, wait bool) (*Run, error) {
	desc, ok := r.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	run := &Run{
		ID:        uuid.NewString(),
		Node:      desc.Name,
		StartedAt: time.Now().UTC(),
	}
	var err error
	switch desc.Kind {
	case catalog.KindChat:
		err = r.executeChat(ctx, desc, params, run)
	default:
		err = r.executeTask(ctx, desc, params, wait, run)
	}
	run.Duration = time.Since(run.StartedAt)
	if err != nil {
		run.Status = piapi.StatusFailed
		run.Error = err.Error()
	}
	r.record(ctx, *run)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Runner) executeTask(ctx context.Context, desc *catalog.Descriptor, params map[string]any, wait bool, run *Run) error {
	req, err := catalog.BuildSubmit(desc, params)
	if err != nil {
		return err
	}
	task, err := r.api.SubmitTask(ctx, req)
	if err != nil {
		return err
	}
	run.TaskID = task.TaskID
	run.Status = task.Status
	if !wait {
		run.Output = task.Output
		return nil
	}

	final, err := piapi.WaitForTask(ctx, r.api, task.TaskID, piapi.PollOptions{
		MaxRetries: desc.Poll.MaxRetries,
		Interval:   time.Duration(desc.Poll.IntervalMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	run.Status = final.Status
	run.Output = final.Output
	run.URLs = extractURLs(desc, final.Output)
	r.archive(ctx, run)
	return nil
}

func (r *Runner) executeChat(ctx context.Context, desc *catalog.Descriptor, params map[string]any, run *Run) error {
	req, err := catalog.BuildSubmit(desc, params)
	if err != nil {
		return err
	}
	prompt, _ := req.Input["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return &catalog.ValidationError{Param: "prompt", Reason: "required value is missing"}
	}
	body := map[string]any{
		"model": desc.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": true,
	}
	stream, err := r.api.CallRaw(ctx, piapi.Request{
		Method: http.MethodPost,
		Path:   "/v1/chat/completions",
		Body:   body,
		Auth:   piapi.AuthBearer,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	content, err := piapi.CollectStream(stream)
	if err != nil {
		return err
	}
	run.Status = piapi.StatusCompleted
	run.Content = content
	run.URLs = urlsFromText(content)
	r.archive(ctx, run)
	return nil
}

func (r *Runner) archive(ctx context.Context, run *Run) {
	if r.archiver == nil || len(run.URLs) == 0 {
		return
	}
	keys, err := r.archiver.Archive(ctx, run.ID, run.URLs)
	if err != nil {
		// Archiving is best effort: the run already succeeded remotely.
		if r.logger != nil {
			r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("node: archive failed")
		}
		return
	}
	run.Archived = keys
}

func (r *Runner) record(ctx context.Context, run Run) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, run); err != nil && r.logger != nil {
		r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("node: record run failed")
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

// urlsFromText pulls media links out of accumulated chat content.
func urlsFromText(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;")
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// extractURLs collects result media URLs from the terminal output payload.
// Descriptors can pin exact paths; otherwise any URL-shaped string found
// under a url-ish key is collected.
func extractURLs(desc *catalog.Descriptor, output json.RawMessage) []string {
	if len(output) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(output, &decoded); err != nil {
		return nil
	}
	if len(desc.OutputPaths) > 0 {
		var out []string
		for _, path := range desc.OutputPaths {
			out = append(out, valuesAtPath(decoded, strings.Split(path, "."))...)
		}
		return dedupe(out)
	}
	return dedupe(scanForURLs("", decoded))
}

func valuesAtPath(value any, path []string) []string {
	if len(path) == 0 {
		return urlStrings(value)
	}
	switch v := value.(type) {
	case map[string]any:
		return valuesAtPath(v[path[0]], path[1:])
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, valuesAtPath(item, path)...)
		}
		return out
	}
	return nil
}

func urlStrings(value any) []string {
	switch v := value.(type) {
	case string:
		if isHTTPURL(v) {
			return []string{v}
		}
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, urlStrings(item)...)
		}
		return out
	}
	return nil
}

func scanForURLs(key string, value any) []string {
	switch v := value.(type) {
	case map[string]any:
		var out []string
		for k, child := range v {
			out = append(out, scanForURLs(k, child)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, scanForURLs(key, item)...)
		}
		return out
	case string:
		if strings.Contains(strings.ToLower(key), "url") && isHTTPURL(v) {
			return []string{v}
		}
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
