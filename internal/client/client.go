// Package client talks to the coordinator over its HTTP/JSON RPC surface.
// The same client serves submitters (AddJob, state queries) and workers
// (GetNextJob, the grid task loop).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"zgrid/internal/api"
)

// Client is a coordinator client. Each call is retried for up to one
// minute by default; WithRetryBudget changes that budget.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxElapsedTime time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryBudget bounds the total time spent retrying one call.
func WithRetryBudget(d time.Duration) Option {
	return func(c *Client) { c.maxElapsedTime = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		maxElapsedTime: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) AddJob(ctx context.Context, job *api.Job) (*api.AddJobResponse, error) {
	resp := &api.AddJobResponse{}
	if err := c.post(ctx, "/api/v1/jobs", job, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) AddTasksToGridJob(ctx context.Context, req *api.AddTasksToGridJobRequest) (*api.AddJobResponse, error) {
	resp := &api.AddJobResponse{}
	if err := c.post(ctx, "/api/v1/jobs/"+req.JobID+"/tasks", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) UpdateJobStates(ctx context.Context, req *api.JobStateUpdates) (*api.UpdateStateResponse, error) {
	resp := &api.UpdateStateResponse{}
	if err := c.post(ctx, "/api/v1/jobs/states", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetNextJob(ctx context.Context) (*api.Job, error) {
	job := &api.Job{}
	if err := c.post(ctx, "/api/v1/jobs/next", nil, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) UpdateGridTaskStateAndGetNext(ctx context.Context, req *api.GridTaskUpdateAndGetNextRequest) (*api.GridTask, error) {
	task := &api.GridTask{}
	if err := c.post(ctx, "/api/v1/grid/next", req, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (c *Client) GetSimpleJobStates(ctx context.Context, jobIDs []string) ([]api.ProcessState, error) {
	resp := &api.ProcessStates{}
	req := &api.JobStatesRequest{JobIDs: jobIDs}
	if err := c.post(ctx, "/api/v1/jobs/simple/states", req, resp); err != nil {
		return nil, err
	}
	if len(resp.ProcessStates) != len(jobIDs) {
		return nil, fmt.Errorf("requested %d states, got %d", len(jobIDs), len(resp.ProcessStates))
	}
	return resp.ProcessStates, nil
}

func (c *Client) GetGridTaskStates(ctx context.Context, jobID string, ignoreTaskIDs []int64) ([]api.GridTaskState, error) {
	resp := &api.GridTaskStates{}
	req := &api.GridTaskStatesRequest{JobID: jobID, TaskIDsToIgnore: ignoreTaskIDs}
	if err := c.post(ctx, "/api/v1/grid/states", req, resp); err != nil {
		return nil, err
	}
	return resp.TaskStates, nil
}

// Health fetches the coordinator health snapshot.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	defer httpResp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("health: decode: %w", err)
	}
	return out, nil
}

// post sends one RPC with retry. Network errors, 429s, and 5xx responses
// are retried with exponential backoff; other 4xx responses fail
// immediately with the server's error message and kind.
func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	var body []byte
	if req != nil {
		var err error
		body, err = json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		payload, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return err
		}

		switch {
		case httpResp.StatusCode < 400:
			if resp != nil && len(payload) > 0 {
				if err := json.Unmarshal(payload, resp); err != nil {
					return backoff.Permanent(fmt.Errorf("decode response: %w", err))
				}
			}
			return nil
		case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
			return fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, errorMessage(payload))
		default:
			return backoff.Permanent(rpcError(httpResp.StatusCode, payload))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return nil
}

// rpcError reconstructs the error kind the server mapped onto the status
// code so callers can keep using errors.Is.
func rpcError(status int, payload []byte) error {
	msg := errorMessage(payload)
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", msg, api.ErrValidation)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, api.ErrNotFound)
	default:
		return fmt.Errorf("HTTP %d: %s", status, msg)
	}
}

func errorMessage(payload []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(payload))
}
