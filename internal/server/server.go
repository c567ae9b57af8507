// Package server binds the coordinator RPC surface to HTTP/JSON and serves
// the health endpoint and the websocket event stream.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"zgrid/internal/api"
	"zgrid/internal/events"
)

const maxBodySize = 8 << 20 // 8MB; grid submissions carry pickled arguments

// Server routes coordinator RPCs.
type Server struct {
	coord     api.Coordinator
	hub       *events.Hub
	mux       *http.ServeMux
	startedAt time.Time
}

func New(coord api.Coordinator, hub *events.Hub) *Server {
	s := &Server{coord: coord, hub: hub, startedAt: time.Now()}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/jobs", s.handleAddJob)
	mux.HandleFunc("POST /api/v1/jobs/{job_id}/tasks", s.handleAddTasks)
	mux.HandleFunc("POST /api/v1/jobs/states", s.handleUpdateJobStates)
	mux.HandleFunc("POST /api/v1/jobs/next", s.handleGetNextJob)
	mux.HandleFunc("POST /api/v1/jobs/simple/states", s.handleGetSimpleJobStates)
	mux.HandleFunc("POST /api/v1/grid/next", s.handleGridNext)
	mux.HandleFunc("POST /api/v1/grid/states", s.handleGetGridTaskStates)
	mux.HandleFunc("GET /health", s.handleHealth)
	if hub != nil {
		mux.HandleFunc("GET /api/v1/events", hub.HandleWebSocket)
	}
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := api.Stats{}
	if c, ok := s.coord.(interface{ Stats() api.Stats }); ok {
		stats = c.Stats()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "running",
		"uptime_seconds":   max(int(time.Since(s.startedAt).Seconds()), 0),
		"simple_jobs":      stats.SimpleJobs,
		"grid_jobs":        stats.GridJobs,
		"unassigned_tasks": stats.UnassignedTasks,
	})
}

func (s *Server) handleAddJob(w http.ResponseWriter, r *http.Request) {
	var job api.Job
	if !decode(w, r, &job) {
		return
	}
	resp, err := s.coord.AddJob(r.Context(), &job)
	respond(w, resp, err)
}

func (s *Server) handleAddTasks(w http.ResponseWriter, r *http.Request) {
	var req api.AddTasksToGridJobRequest
	if !decode(w, r, &req) {
		return
	}
	// The path is authoritative for the job id.
	req.JobID = r.PathValue("job_id")
	resp, err := s.coord.AddTasksToGridJob(r.Context(), &req)
	respond(w, resp, err)
}

func (s *Server) handleUpdateJobStates(w http.ResponseWriter, r *http.Request) {
	var req api.JobStateUpdates
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.coord.UpdateJobStates(r.Context(), &req)
	respond(w, resp, err)
}

func (s *Server) handleGetNextJob(w http.ResponseWriter, r *http.Request) {
	resp, err := s.coord.GetNextJob(r.Context())
	respond(w, resp, err)
}

func (s *Server) handleGridNext(w http.ResponseWriter, r *http.Request) {
	var req api.GridTaskUpdateAndGetNextRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.coord.UpdateGridTaskStateAndGetNext(r.Context(), &req)
	respond(w, resp, err)
}

func (s *Server) handleGetSimpleJobStates(w http.ResponseWriter, r *http.Request) {
	var req api.JobStatesRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.coord.GetSimpleJobStates(r.Context(), &req)
	respond(w, resp, err)
}

func (s *Server) handleGetGridTaskStates(w http.ResponseWriter, r *http.Request) {
	var req api.GridTaskStatesRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.coord.GetGridTaskStates(r.Context(), &req)
	respond(w, resp, err)
}

// decode reads a size-limited JSON body into v, answering 400 itself when
// the body is malformed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		slog.Warn("rpc: parse request body", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// respond writes the RPC result, mapping error kinds to status codes:
// validation and unsupported fail with 400, not-found with 404, anything
// else with 500.
func respond(w http.ResponseWriter, resp any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, api.ErrValidation), errors.Is(err, api.ErrUnsupported):
			status = http.StatusBadRequest
		case errors.Is(err, api.ErrNotFound):
			status = http.StatusNotFound
		}
		if status == http.StatusInternalServerError {
			slog.Error("rpc failed", "err", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("rpc: write response", "err", err)
	}
}
