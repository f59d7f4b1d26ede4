package piapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediabridge/internal/infra"
)

// AuthMode selects how the API key is placed on the wire. The primary task
// API uses a custom key header while the chat-completions family expects a
// bearer token; the two schemes differ only in header construction.
type AuthMode int

const (
	AuthAPIKey AuthMode = iota
	AuthBearer
)

// Options configures the task API client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs authenticated HTTP calls against the remote task API. It is
// stateless between calls and safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Request is a single transient HTTP call description.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Auth   AuthMode
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.piapi.ai"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// authHeader returns the header name/value pair for the given auth mode. It
// is a pure function of the mode and key.
func authHeader(mode AuthMode, apiKey string) (string, string) {
	if mode == AuthBearer {
		return "Authorization", "Bearer " + apiKey
	}
	return "X-API-Key", apiKey
}

// Call performs one HTTP request and decodes the response envelope. The HTTP
// status line is not used to branch: the remote API reports logical failures
// inside the envelope's own code/message fields, which the caller inspects.
func (c *Client) Call(ctx context.Context, req Request) (*Envelope, error) {
	raw, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("piapi: decode response: %w", err)
	}
	return &env, nil
}

// CallRaw performs one HTTP request and returns the unparsed response body.
// Used by the streaming chat endpoint, whose body is not a JSON envelope.
func (c *Client) CallRaw(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APICallError{Err: err}
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APICallError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APICallError{Err: err}
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("http_status", resp.StatusCode).
		Msg("piapi: api call completed")
	return raw, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}
	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("piapi: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("piapi: build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	name, value := authHeader(req.Auth, c.apiKey)
	httpReq.Header.Set(name, value)
	return httpReq, nil
}

// SubmitTask creates a new task and returns the remote job record, including
// the service-assigned task identifier.
func (c *Client) SubmitTask(ctx context.Context, req SubmitRequest) (*Task, error) {
	env, err := c.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/v1/task",
		Body:   req,
		Auth:   AuthAPIKey,
	})
	if err != nil {
		return nil, err
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return nil, &RemoteError{Code: env.Code, Message: env.Message}
	}
	if env.Data == nil || strings.TrimSpace(env.Data.TaskID) == "" {
		return nil, fmt.Errorf("piapi: submit response missing task_id")
	}
	c.logger.Info().
		Str("task_id", env.Data.TaskID).
		Str("model", req.Model).
		Str("task_type", req.TaskType).
		Str("status", env.Data.Status).
		Msg("piapi: task submitted")
	return env.Data, nil
}

// GetTask fetches the current job record for a submitted task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	env, err := c.Call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/v1/task/" + url.PathEscape(taskID),
		Auth:   AuthAPIKey,
	})
	if err != nil {
		return nil, err
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return nil, &RemoteError{Code: env.Code, Message: env.Message}
	}
	if env.Data == nil {
		return nil, fmt.Errorf("piapi: status response missing data")
	}
	return env.Data, nil
}
