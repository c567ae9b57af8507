package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Coordinator is the RPC surface of the grid coordinator. The HTTP server
// binds it; the in-memory implementation lives in internal/coordinator.
type Coordinator interface {
	AddJob(ctx context.Context, job *Job) (*AddJobResponse, error)
	AddTasksToGridJob(ctx context.Context, req *AddTasksToGridJobRequest) (*AddJobResponse, error)
	UpdateJobStates(ctx context.Context, req *JobStateUpdates) (*UpdateStateResponse, error)
	GetNextJob(ctx context.Context) (*Job, error)
	UpdateGridTaskStateAndGetNext(ctx context.Context, req *GridTaskUpdateAndGetNextRequest) (*GridTask, error)
	GetSimpleJobStates(ctx context.Context, req *JobStatesRequest) (*ProcessStates, error)
	GetGridTaskStates(ctx context.Context, req *GridTaskStatesRequest) (*GridTaskStates, error)
}

// Error kinds surfaced across the RPC boundary. Wrap with
// fmt.Errorf("...: %w", ErrValidation) and test with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported")
)

// identifierAlphabet is the only set of characters permitted in job ids,
// friendly names, and run-request ids.
const identifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._-"

// ValidIdentifier reports whether s uses only the identifier alphabet.
// The empty string is valid here; callers that require non-empty ids
// (job_id, request_id) check that separately.
func ValidIdentifier(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(identifierAlphabet, r) {
			return false
		}
	}
	return true
}

// ValidateJobIdentifiers checks the submission identifiers of a job.
func ValidateJobIdentifiers(jobID, friendlyName string) error {
	if jobID == "" {
		return fmt.Errorf("job_id must not be empty: %w", ErrValidation)
	}
	if !ValidIdentifier(jobID) || !ValidIdentifier(friendlyName) {
		return fmt.Errorf(
			"job_id %q or friendly name %q contains invalid characters, only letters, numbers, ., -, and _ are permitted: %w",
			jobID, friendlyName, ErrValidation)
	}
	return nil
}
