package client

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"zgrid/internal/api"
	"zgrid/internal/coordinator"
	"zgrid/internal/server"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	coord := coordinator.New(coordinator.WithRand(rand.New(rand.NewPCG(3, 4))))
	srv := httptest.NewServer(server.New(coord, nil))
	t.Cleanup(srv.Close)
	return New(srv.URL, WithRetryBudget(2*time.Second))
}

func TestClientGridRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestClient(t)

	resp, err := c.AddJob(ctx, &api.Job{
		JobID: "g1", JobFriendlyName: "g1", Priority: 1,
		PyGrid: &api.PyGridJob{
			Tasks: []api.GridTask{
				{TaskID: 0, PickledFunctionArguments: []byte("zero")},
				{TaskID: 1, PickledFunctionArguments: []byte("one")},
			},
		},
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if resp.State != api.AddJobAdded {
		t.Fatalf("add state = %s", resp.State)
	}

	if _, err := c.AddTasksToGridJob(ctx, &api.AddTasksToGridJobRequest{
		JobID: "g1", Tasks: []api.GridTask{{TaskID: 2}}, AllTasksAdded: true,
	}); err != nil {
		t.Fatalf("add tasks: %v", err)
	}

	job, err := c.GetNextJob(ctx)
	if err != nil {
		t.Fatalf("get next job: %v", err)
	}
	if job.JobID != "g1" {
		t.Fatalf("next job = %q, want g1", job.JobID)
	}

	// Drain the task queue; first-time returns follow insertion order.
	var order []int64
	req := &api.GridTaskUpdateAndGetNextRequest{JobID: "g1", TaskID: -1}
	for {
		task, err := c.UpdateGridTaskStateAndGetNext(ctx, req)
		if err != nil {
			t.Fatalf("grid next: %v", err)
		}
		if task.TaskID == -1 {
			break
		}
		order = append(order, task.TaskID)
		req = &api.GridTaskUpdateAndGetNextRequest{
			JobID: "g1", TaskID: task.TaskID,
			ProcessState: api.ProcessState{State: api.StateSucceeded},
		}
	}
	want := []int64{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("dispatched %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatched %v, want %v", order, want)
		}
	}

	states, err := c.GetGridTaskStates(ctx, "g1", nil)
	if err != nil {
		t.Fatalf("grid states: %v", err)
	}
	for _, ts := range states {
		if ts.ProcessState.State != api.StateSucceeded {
			t.Fatalf("task %d state = %s, want SUCCEEDED", ts.TaskID, ts.ProcessState.State)
		}
	}
}

func TestClientSurfacesErrorKinds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.AddJob(ctx, &api.Job{JobID: "bad id", Priority: 1,
		PyCommand: &api.PyCommandJob{CommandLine: []string{"true"}}})
	if !errors.Is(err, api.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = c.GetGridTaskStates(ctx, "ghost", nil)
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id":""}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryBudget(10*time.Second))
	job, err := c.GetNextJob(ctx)
	if err != nil {
		t.Fatalf("get next job after retries: %v", err)
	}
	if !job.Empty() {
		t.Fatalf("expected empty job, got %+v", job)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", calls.Load())
	}
}

func TestClientDoesNotRetryValidationErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetryBudget(5*time.Second))
	_, err := c.GetNextJob(ctx)
	if !errors.Is(err, api.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls.Load())
	}
}
