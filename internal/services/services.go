// package services contains the HTTP client for a running motifd server.
//
// The client speaks the JSON envelope the server package emits and converts
// error bodies back into the shared sentinel errors, so CLI code can branch
// with errors.Is the same way server code does.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/desertthunder/motifd/internal/shared"
	"github.com/desertthunder/motifd/internal/tasks"
)

// Client provides methods for calling the render task API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client instance.
func NewClient(baseURL, token string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: client,
	}
}

// RenderRequest mirrors the server submission payload.
type RenderRequest struct {
	InputPath string  `json:"input_path,omitempty"`
	InputData []byte  `json:"input_data,omitempty"`
	Name      string  `json:"name,omitempty"`
	Style     string  `json:"style,omitempty"`
	Intensity float64 `json:"intensity,omitempty"`
}

// Submission is the accepted-submission result body.
type Submission struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// envelope mirrors the server response shape.
type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// sentinelByCode maps wire codes back to the shared sentinels.
var sentinelByCode = map[string]error{
	"E_AUTH":             shared.ErrUnauthorized,
	"E_FORBIDDEN":        shared.ErrForbidden,
	"E_QUOTA":            shared.ErrQuotaExceeded,
	"E_VALIDATION":       shared.ErrValidation,
	"E_NOT_FOUND":        shared.ErrNotFound,
	"E_RATE_LIMIT":       shared.ErrRateLimited,
	"E_CONFIG":           shared.ErrConfig,
	"E_PROVIDER":         shared.ErrProvider,
	"E_PROVIDER_TIMEOUT": shared.ErrProviderTimeout,
	"E_UNAVAILABLE":      shared.ErrServiceUnavailable,
}

// Health checks whether the server is reachable and reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	var result map[string]string
	return c.call(ctx, http.MethodGet, "/health", nil, &result)
}

// Submit queues a render task and returns its id.
func (c *Client) Submit(ctx context.Context, req RenderRequest) (*Submission, error) {
	var result Submission
	if err := c.call(ctx, http.MethodPost, "/render", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitSync submits with the synchronous flag and blocks until the server
// reports a terminal task. Requires the server to allow synchronous mode.
func (c *Client) SubmitSync(ctx context.Context, req RenderRequest) (*tasks.Task, error) {
	var result tasks.Task
	if err := c.call(ctx, http.MethodPost, "/render?sync=1", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Task fetches a task snapshot.
func (c *Client) Task(ctx context.Context, id string) (*tasks.Task, error) {
	var result tasks.Task
	if err := c.call(ctx, http.MethodGet, "/tasks/"+id, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel requests cancellation and returns the resulting snapshot.
func (c *Client) Cancel(ctx context.Context, id string) (*tasks.Task, error) {
	var result tasks.Task
	if err := c.call(ctx, http.MethodDelete, "/tasks/"+id, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Download streams the artifact at the published URL into dest.
func (c *Client) Download(ctx context.Context, audioURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+audioURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.Body)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// call performs one request/response cycle against an envelope endpoint and
// unmarshals the result body into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: server returned a non-envelope response (status %d)", shared.ErrInternal, resp.StatusCode)
	}

	if !env.OK {
		if env.Error == nil {
			return fmt.Errorf("%w: server rejected the request (status %d)", shared.ErrInternal, resp.StatusCode)
		}
		if sentinel, ok := sentinelByCode[env.Error.Code]; ok {
			return fmt.Errorf("%w: %s", sentinel, env.Error.Message)
		}
		return fmt.Errorf("%w: %s", shared.ErrInternal, env.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%w: malformed result body: %v", shared.ErrInternal, err)
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeError(body io.Reader) error {
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil || env.Error == nil {
		return fmt.Errorf("%w: download failed", shared.ErrInternal)
	}
	if sentinel, ok := sentinelByCode[env.Error.Code]; ok {
		return fmt.Errorf("%w: %s", sentinel, env.Error.Message)
	}
	return fmt.Errorf("%w: %s", shared.ErrInternal, env.Error.Message)
}
