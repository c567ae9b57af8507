package server

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"zgrid/internal/api"
	"zgrid/internal/coordinator"
	"zgrid/internal/events"
)

func newTestServer() *Server {
	coord := coordinator.New(coordinator.WithRand(rand.New(rand.NewPCG(1, 2))))
	return New(coord, events.NewHub())
}

func post(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestAddJobAndGetNextOverHTTP(t *testing.T) {
	t.Parallel()
	srv := newTestServer()

	job := &api.Job{
		JobID: "j1", JobFriendlyName: "j1", Priority: 1,
		PyCommand: &api.PyCommandJob{CommandLine: []string{"echo", "hi"}},
	}
	rec := post(t, srv, "/api/v1/jobs", job)
	if rec.Code != http.StatusOK {
		t.Fatalf("add job status = %d, body %s", rec.Code, rec.Body.String())
	}
	var addResp api.AddJobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &addResp); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	if addResp.State != api.AddJobAdded {
		t.Fatalf("add state = %s", addResp.State)
	}

	rec = post(t, srv, "/api/v1/jobs/next", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get next status = %d", rec.Code)
	}
	var next api.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode next job: %v", err)
	}
	if next.JobID != "j1" || next.PyCommand == nil {
		t.Fatalf("next job = %+v", next)
	}
}

func TestValidationErrorsMapTo400(t *testing.T) {
	t.Parallel()
	srv := newTestServer()

	rec := post(t, srv, "/api/v1/jobs", &api.Job{JobID: "bad id", Priority: 1,
		PyCommand: &api.PyCommandJob{CommandLine: []string{"true"}}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want 400", rec.Code)
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil || e.Error == "" {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
}

func TestNotFoundMapsTo404(t *testing.T) {
	t.Parallel()
	srv := newTestServer()

	rec := post(t, srv, "/api/v1/grid/states", &api.GridTaskStatesRequest{JobID: "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown grid job status = %d, want 404", rec.Code)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	t.Parallel()
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json status = %d, want 400", rec.Code)
	}
}

func TestAddTasksUsesPathJobID(t *testing.T) {
	t.Parallel()
	srv := newTestServer()

	grid := &api.Job{
		JobID: "g1", JobFriendlyName: "g1", Priority: 1,
		PyGrid: &api.PyGridJob{Tasks: []api.GridTask{{TaskID: 0}}},
	}
	if rec := post(t, srv, "/api/v1/jobs", grid); rec.Code != http.StatusOK {
		t.Fatalf("add grid job status = %d", rec.Code)
	}

	// The body's job_id is ignored in favor of the path.
	rec := post(t, srv, "/api/v1/jobs/g1/tasks", &api.AddTasksToGridJobRequest{
		JobID: "other", Tasks: []api.GridTask{{TaskID: 1}}, AllTasksAdded: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add tasks status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = post(t, srv, "/api/v1/grid/states", &api.GridTaskStatesRequest{JobID: "g1"})
	var states api.GridTaskStates
	if err := json.Unmarshal(rec.Body.Bytes(), &states); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	if len(states.TaskStates) != 2 {
		t.Fatalf("got %d tasks, want 2", len(states.TaskStates))
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "running" {
		t.Fatalf("health body = %v", body)
	}
}
