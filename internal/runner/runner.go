// Package runner is the client for the worker-side job-runner service: it
// asks a runner process to execute a deployed function and polls the
// resulting process states.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zgrid/internal/api"
)

// HighestPickleProtocol is the highest pickle protocol this side can read
// back.
const HighestPickleProtocol = 5

// InterpreterVersion identifies the remote interpreter.
type InterpreterVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Micro int `json:"micro"`
}

func (v InterpreterVersion) atLeast(major, minor, micro int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Micro >= micro
}

// PickleProtocol chooses the pickle protocol for sending arguments to the
// given interpreter: 5 from 3.8, 4 from 3.4, 3 from 3.0, capped at what
// this side supports. Python 2 is rejected.
func PickleProtocol(v InterpreterVersion) (int, error) {
	var protocol int
	switch {
	case v.atLeast(3, 8, 0):
		protocol = 5
	case v.atLeast(3, 4, 0):
		protocol = 4
	case v.atLeast(3, 0, 0):
		protocol = 3
	default:
		return 0, fmt.Errorf("only python 3 is supported, got %d.%d.%d: %w",
			v.Major, v.Minor, v.Micro, api.ErrUnsupported)
	}
	return min(protocol, HighestPickleProtocol), nil
}

// DeployedFunction describes a function the runner can import and call:
// code paths that must make sense on the runner's machine, the interpreter
// to use, and the already-pickled arguments.
type DeployedFunction struct {
	ModuleName               string             `json:"module_name"`
	FunctionName             string             `json:"function_name"`
	PickledFunctionArguments []byte             `json:"pickled_function_arguments,omitempty"`
	CodePaths                []string           `json:"code_paths,omitempty"`
	InterpreterPath          string             `json:"interpreter_path,omitempty"`
	InterpreterVersion       InterpreterVersion `json:"interpreter_version"`
}

// runFunctionRequest is the wire shape of a run request.
type runFunctionRequest struct {
	RequestID                   string   `json:"request_id"`
	ModuleName                  string   `json:"module_name"`
	FunctionName                string   `json:"function_name"`
	PickledFunctionArguments    []byte   `json:"pickled_function_arguments,omitempty"`
	CodePaths                   []string `json:"code_paths,omitempty"`
	InterpreterPath             string   `json:"interpreter_path,omitempty"`
	PickleProtocol              int      `json:"pickle_protocol"`
	ResultHighestPickleProtocol int      `json:"result_highest_pickle_protocol"`
}

type processStatesRequest struct {
	RequestIDs []string `json:"request_ids"`
}

type processStatesResponse struct {
	ProcessStates []api.ProcessState `json:"process_states"`
}

// Client talks to one runner server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RunFunction asks the runner to execute fn. requestID must be unique and
// use the identifier alphabet; duplicate ids come back as
// REQUEST_IS_DUPLICATE even when the other parameters differ.
func (c *Client) RunFunction(ctx context.Context, requestID string, fn DeployedFunction) (api.ProcessState, error) {
	if requestID == "" || !api.ValidIdentifier(requestID) {
		return api.ProcessState{}, fmt.Errorf(
			"request_id %q must be non-empty and use only letters, numbers, ., -, and _: %w",
			requestID, api.ErrValidation)
	}
	protocol, err := PickleProtocol(fn.InterpreterVersion)
	if err != nil {
		return api.ProcessState{}, err
	}

	req := runFunctionRequest{
		RequestID:                   requestID,
		ModuleName:                  fn.ModuleName,
		FunctionName:                fn.FunctionName,
		PickledFunctionArguments:    fn.PickledFunctionArguments,
		CodePaths:                   fn.CodePaths,
		InterpreterPath:             fn.InterpreterPath,
		PickleProtocol:              protocol,
		ResultHighestPickleProtocol: HighestPickleProtocol,
	}
	var state api.ProcessState
	if err := c.post(ctx, "/api/v1/run", req, &state); err != nil {
		return api.ProcessState{}, err
	}
	return state, nil
}

// GetProcessStates returns one state per request id, in order.
func (c *Client) GetProcessStates(ctx context.Context, requestIDs []string) ([]api.ProcessState, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}
	var resp processStatesResponse
	if err := c.post(ctx, "/api/v1/process_states", processStatesRequest{RequestIDs: requestIDs}, &resp); err != nil {
		return nil, err
	}
	if len(resp.ProcessStates) != len(requestIDs) {
		return nil, fmt.Errorf("requested %d process states, got back %d",
			len(requestIDs), len(resp.ProcessStates))
	}
	return resp.ProcessStates, nil
}

func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("POST %s: read response: %w", path, err)
	}
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("POST %s: HTTP %d: %s", path, httpResp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if err := json.Unmarshal(payload, resp); err != nil {
		return fmt.Errorf("POST %s: decode response: %w", path, err)
	}
	return nil
}
