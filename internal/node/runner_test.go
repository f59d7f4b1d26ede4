package node

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediabridge/internal/catalog"
	"mediabridge/internal/piapi"
)

type fakeAPI struct {
	submitReq    *piapi.SubmitRequest
	submitTask   *piapi.Task
	submitErr    error
	statuses     []*piapi.Task
	statusErr    error
	statusCalls  int
	chatReq      *piapi.Request
	chatStream   string
	chatErr      error
}

func (f *fakeAPI) SubmitTask(ctx context.Context, req piapi.SubmitRequest) (*piapi.Task, error) {
	f.submitReq = &req
	return f.submitTask, f.submitErr
}

func (f *fakeAPI) GetTask(ctx context.Context, taskID string) (*piapi.Task, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	idx := f.statusCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func (f *fakeAPI) CallRaw(ctx context.Context, req piapi.Request) (io.ReadCloser, error) {
	f.chatReq = &req
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return io.NopCloser(strings.NewReader(f.chatStream)), nil
}

type capturingRecorder struct {
	runs []Run
}

func (c *capturingRecorder) Record(ctx context.Context, run Run) error {
	c.runs = append(c.runs, run)
	return nil
}

type fakeArchiver struct {
	urls []string
	keys []string
	err  error
}

func (f *fakeArchiver) Archive(ctx context.Context, runID string, urls []string) ([]string, error) {
	f.urls = urls
	return f.keys, f.err
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"image.yaml": `
name: flux-text-to-image
model: Qubico/flux1-dev
task_type: txt2img
params:
  - name: prompt
    type: string
    required: true
    target: input.prompt
poll:
  max_retries: 5
  interval_ms: 1
`,
		"chat.yaml": `
name: llm-chat
kind: chat
model: gpt-4o-mini
params:
  - name: prompt
    type: string
    required: true
    target: input.prompt
`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	cat, err := catalog.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir returned error: %v", err)
	}
	return cat
}

func TestExecuteTaskPollsToCompletion(t *testing.T) {
	output := json.RawMessage(`{"image_url":"https://cdn.example.com/out.png"}`)
	api := &fakeAPI{
		submitTask: &piapi.Task{TaskID: "abc123", Status: piapi.StatusPending},
		statuses: []*piapi.Task{
			{TaskID: "abc123", Status: piapi.StatusProcessing},
			{TaskID: "abc123", Status: piapi.StatusCompleted, Output: output},
		},
	}
	recorder := &capturingRecorder{}
	runner, err := NewRunner(Options{API: api, Catalog: testCatalog(t), Recorder: recorder})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	run, err := runner.Execute(context.Background(), "flux-text-to-image", map[string]any{"prompt": "a red fox"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.submitReq.Model != "Qubico/flux1-dev" || api.submitReq.Input["prompt"] != "a red fox" {
		t.Fatalf("unexpected submit request: %+v", api.submitReq)
	}
	if api.statusCalls != 2 {
		t.Fatalf("status calls = %d, want 2", api.statusCalls)
	}
	if run.TaskID != "abc123" || run.Status != piapi.StatusCompleted {
		t.Fatalf("unexpected run: %+v", run)
	}
	if len(run.URLs) != 1 || run.URLs[0] != "https://cdn.example.com/out.png" {
		t.Fatalf("unexpected urls: %#v", run.URLs)
	}
	if len(recorder.runs) != 1 || recorder.runs[0].Node != "flux-text-to-image" {
		t.Fatalf("run not recorded: %#v", recorder.runs)
	}
}

func TestExecuteTaskWithoutWaitReturnsAfterSubmit(t *testing.T) {
	api := &fakeAPI{
		submitTask: &piapi.Task{TaskID: "abc123", Status: piapi.StatusPending},
	}
	runner, err := NewRunner(Options{API: api, Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	run, err := runner.Execute(context.Background(), "flux-text-to-image", map[string]any{"prompt": "a red fox"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.statusCalls != 0 {
		t.Fatalf("must not poll when wait=false, got %d status calls", api.statusCalls)
	}
	if run.TaskID != "abc123" || run.Status != piapi.StatusPending {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestExecuteValidationFailsBeforeAnyNetworkCall(t *testing.T) {
	api := &fakeAPI{
		submitTask: &piapi.Task{TaskID: "abc123", Status: piapi.StatusPending},
	}
	runner, err := NewRunner(Options{API: api, Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	_, err = runner.Execute(context.Background(), "flux-text-to-image", map[string]any{}, true)
	var verr *catalog.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if api.submitReq != nil {
		t.Fatalf("submit must not be called on validation failure")
	}
}

func TestExecuteSurfacesRemoteTaskFailure(t *testing.T) {
	api := &fakeAPI{
		submitTask: &piapi.Task{TaskID: "abc123", Status: piapi.StatusPending},
		statuses: []*piapi.Task{
			{TaskID: "abc123", Status: piapi.StatusFailed, Error: &piapi.TaskError{Message: "bad image"}},
		},
	}
	recorder := &capturingRecorder{}
	runner, err := NewRunner(Options{API: api, Catalog: testCatalog(t), Recorder: recorder})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	_, err = runner.Execute(context.Background(), "flux-text-to-image", map[string]any{"prompt": "x"}, true)
	var failedErr *piapi.TaskFailedError
	if !errors.As(err, &failedErr) {
		t.Fatalf("expected TaskFailedError, got %v", err)
	}
	if len(recorder.runs) != 1 || recorder.runs[0].Status != piapi.StatusFailed {
		t.Fatalf("failed run should still be recorded: %#v", recorder.runs)
	}
	if !strings.Contains(recorder.runs[0].Error, "bad image") {
		t.Fatalf("recorded run should carry the remote detail: %q", recorder.runs[0].Error)
	}
}

func TestExecuteChatStreamsAndExtractsURLs(t *testing.T) {
	api := &fakeAPI{
		chatStream: strings.Join([]string{
			`data: {"choices":[{"delta":{"content":"Here you go: "}}]}`,
			`data: {"choices":[{"delta":{"content":"https://cdn.example.com/song.mp3"}}]}`,
			`data: [DONE]`,
		}, "\n"),
	}
	runner, err := NewRunner(Options{API: api, Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	run, err := runner.Execute(context.Background(), "llm-chat", map[string]any{"prompt": "make a song"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.chatReq == nil {
		t.Fatalf("chat endpoint not called")
	}
	if api.chatReq.Auth != piapi.AuthBearer {
		t.Fatalf("chat must use bearer auth, got %v", api.chatReq.Auth)
	}
	if api.chatReq.Path != "/v1/chat/completions" {
		t.Fatalf("unexpected chat path: %s", api.chatReq.Path)
	}
	body, ok := api.chatReq.Body.(map[string]any)
	if !ok || body["stream"] != true || body["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected chat body: %#v", api.chatReq.Body)
	}
	if run.Content != "Here you go: https://cdn.example.com/song.mp3" {
		t.Fatalf("unexpected content: %q", run.Content)
	}
	if len(run.URLs) != 1 || run.URLs[0] != "https://cdn.example.com/song.mp3" {
		t.Fatalf("unexpected urls: %#v", run.URLs)
	}
}

func TestExecuteUnknownNode(t *testing.T) {
	runner, err := NewRunner(Options{API: &fakeAPI{}, Catalog: testCatalog(t)})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	_, err = runner.Execute(context.Background(), "does-not-exist", nil, true)
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestExecuteArchivesResultMedia(t *testing.T) {
	output := json.RawMessage(`{"video_url":"https://cdn.example.com/clip.mp4"}`)
	api := &fakeAPI{
		submitTask: &piapi.Task{TaskID: "abc123", Status: piapi.StatusPending},
		statuses: []*piapi.Task{
			{TaskID: "abc123", Status: piapi.StatusSuccess, Output: output},
		},
	}
	archiver := &fakeArchiver{keys: []string{"runs/x/clip.mp4"}}
	runner, err := NewRunner(Options{API: api, Catalog: testCatalog(t), Archiver: archiver})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	run, err := runner.Execute(context.Background(), "flux-text-to-image", map[string]any{"prompt": "x"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(archiver.urls) != 1 || archiver.urls[0] != "https://cdn.example.com/clip.mp4" {
		t.Fatalf("archiver not invoked with result urls: %#v", archiver.urls)
	}
	if len(run.Archived) != 1 || run.Archived[0] != "runs/x/clip.mp4" {
		t.Fatalf("archive keys not attached: %#v", run.Archived)
	}
}

func TestExtractURLsWithPinnedPaths(t *testing.T) {
	desc := &catalog.Descriptor{
		Name:        "kling-video",
		Model:       "kling",
		TaskType:    "video_generation",
		OutputPaths: []string{"works.video.resource"},
	}
	output := json.RawMessage(`{
		"works": [
			{"video": {"resource": "https://cdn.example.com/a.mp4"}},
			{"video": {"resource": "https://cdn.example.com/b.mp4"}}
		],
		"thumbnail_url": "https://cdn.example.com/thumb.jpg"
	}`)
	urls := extractURLs(desc, output)
	if len(urls) != 2 || urls[0] != "https://cdn.example.com/a.mp4" || urls[1] != "https://cdn.example.com/b.mp4" {
		t.Fatalf("unexpected urls: %#v", urls)
	}
}

func TestExtractURLsGenericScan(t *testing.T) {
	desc := &catalog.Descriptor{Name: "x", Model: "m", TaskType: "t"}
	output := json.RawMessage(`{
		"image_url": "https://cdn.example.com/a.png",
		"image_urls": ["https://cdn.example.com/b.png"],
		"seed": "12345",
		"note": "https://not-under-a-url-key.example.com"
	}`)
	urls := extractURLs(desc, output)
	if len(urls) != 2 {
		t.Fatalf("unexpected urls: %#v", urls)
	}
}
