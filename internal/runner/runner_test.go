package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"zgrid/internal/api"
)

func TestPickleProtocol(t *testing.T) {
	t.Parallel()

	cases := []struct {
		version InterpreterVersion
		want    int
	}{
		{InterpreterVersion{3, 8, 0}, 5},
		{InterpreterVersion{3, 11, 2}, 5},
		{InterpreterVersion{3, 7, 9}, 4},
		{InterpreterVersion{3, 4, 0}, 4},
		{InterpreterVersion{3, 2, 0}, 3},
		{InterpreterVersion{3, 0, 0}, 3},
		{InterpreterVersion{4, 0, 0}, 5},
	}
	for _, tc := range cases {
		got, err := PickleProtocol(tc.version)
		if err != nil {
			t.Fatalf("protocol for %+v: %v", tc.version, err)
		}
		if got != tc.want {
			t.Fatalf("protocol for %+v = %d, want %d", tc.version, got, tc.want)
		}
	}
}

func TestPickleProtocolRejectsPython2(t *testing.T) {
	t.Parallel()

	for _, v := range []InterpreterVersion{{2, 7, 18}, {2, 0, 0}, {1, 5, 2}} {
		_, err := PickleProtocol(v)
		if !errors.Is(err, api.ErrUnsupported) {
			t.Fatalf("expected unsupported error for %+v, got %v", v, err)
		}
	}
}

func TestRunFunctionValidatesRequestID(t *testing.T) {
	t.Parallel()
	c := New("http://127.0.0.1:0")

	for _, id := range []string{"", "has space", "a/b"} {
		_, err := c.RunFunction(context.Background(), id, DeployedFunction{
			InterpreterVersion: InterpreterVersion{Major: 3, Minor: 8},
		})
		if !errors.Is(err, api.ErrValidation) {
			t.Fatalf("request id %q: expected validation error, got %v", id, err)
		}
	}
}

func TestRunFunctionSendsProtocol(t *testing.T) {
	t.Parallel()

	var got runFunctionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ProcessState{State: api.StateRunning, PID: 11})
	}))
	defer srv.Close()

	c := New(srv.URL)
	state, err := c.RunFunction(context.Background(), "req-1", DeployedFunction{
		ModuleName: "pkg.mod", FunctionName: "f",
		InterpreterVersion: InterpreterVersion{Major: 3, Minor: 7},
	})
	if err != nil {
		t.Fatalf("run function: %v", err)
	}
	if state.State != api.StateRunning || state.PID != 11 {
		t.Fatalf("state = %+v", state)
	}
	if got.PickleProtocol != 4 {
		t.Fatalf("sent protocol %d, want 4 for python 3.7", got.PickleProtocol)
	}
	if got.ResultHighestPickleProtocol != HighestPickleProtocol {
		t.Fatalf("result protocol %d, want %d", got.ResultHighestPickleProtocol, HighestPickleProtocol)
	}
	if got.RequestID != "req-1" || got.ModuleName != "pkg.mod" {
		t.Fatalf("request = %+v", got)
	}
}

func TestGetProcessStatesCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(processStatesResponse{
			ProcessStates: []api.ProcessState{{State: api.StateRunning}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetProcessStates(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected error on state count mismatch")
	}

	// No ids means no call at all.
	states, err := c.GetProcessStates(context.Background(), nil)
	if err != nil || states != nil {
		t.Fatalf("empty request: %v %v", states, err)
	}
}
