package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"zgrid/internal/api"
)

// fakeCoordinator serves one grid job's task queue in memory.
type fakeCoordinator struct {
	mu      sync.Mutex
	job     *api.Job
	queue   []api.GridTask
	updates map[int64]api.ProcessStateEnum
	simple  []api.JobStateUpdate
	served  bool
}

func (f *fakeCoordinator) GetNextJob(ctx context.Context) (*api.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served || f.job == nil {
		return &api.Job{}, nil
	}
	f.served = true
	return f.job, nil
}

func (f *fakeCoordinator) UpdateGridTaskStateAndGetNext(ctx context.Context, req *api.GridTaskUpdateAndGetNextRequest) (*api.GridTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.TaskID != -1 {
		f.updates[req.TaskID] = req.ProcessState.State
	}
	if len(f.queue) == 0 {
		return api.NoTask(), nil
	}
	task := f.queue[0]
	f.queue = f.queue[1:]
	return &task, nil
}

func (f *fakeCoordinator) UpdateJobStates(ctx context.Context, req *api.JobStateUpdates) (*api.UpdateStateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simple = append(f.simple, req.JobStates...)
	return &api.UpdateStateResponse{}, nil
}

// fakeExecutor records what it ran and succeeds.
type fakeExecutor struct {
	mu   sync.Mutex
	args []string
}

func (f *fakeExecutor) RunCommand(ctx context.Context, job *api.Job) api.ProcessState {
	return api.ProcessState{State: api.StateSucceeded}
}

func (f *fakeExecutor) RunFunction(ctx context.Context, job *api.Job, fn *api.PyFunctionJob, pickledArgs []byte) api.ProcessState {
	f.mu.Lock()
	f.args = append(f.args, string(pickledArgs))
	f.mu.Unlock()
	return api.ProcessState{State: api.StateSucceeded}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPoolDrainsGridJobFIFO(t *testing.T) {
	t.Parallel()

	coord := &fakeCoordinator{
		job: &api.Job{
			JobID: "g1", Priority: 1,
			PyGrid: &api.PyGridJob{Function: &api.PyFunctionJob{ModuleName: "m", FunctionName: "f"}},
		},
		queue: []api.GridTask{
			{TaskID: 0, PickledFunctionArguments: []byte("a")},
			{TaskID: 1, PickledFunctionArguments: []byte("b")},
			{TaskID: 2, PickledFunctionArguments: []byte("c")},
		},
		updates: make(map[int64]api.ProcessStateEnum),
	}
	exec := &fakeExecutor{}
	pool := NewPool(1, coord, exec, 10*time.Millisecond)
	pool.Start(context.Background())
	defer pool.Stop()

	waitFor(t, 5*time.Second, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.updates) == 3
	})

	coord.mu.Lock()
	defer coord.mu.Unlock()
	for _, id := range []int64{0, 1, 2} {
		if coord.updates[id] != api.StateSucceeded {
			t.Fatalf("task %d reported %s, want SUCCEEDED", id, coord.updates[id])
		}
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.args) != 3 || exec.args[0] != "a" || exec.args[1] != "b" || exec.args[2] != "c" {
		t.Fatalf("executed args %v, want FIFO a b c", exec.args)
	}
}

func TestPoolReportsCommandJobStates(t *testing.T) {
	t.Parallel()

	coord := &fakeCoordinator{
		job: &api.Job{
			JobID: "j1", Priority: 1,
			PyCommand: &api.PyCommandJob{CommandLine: []string{"true"}},
		},
		updates: make(map[int64]api.ProcessStateEnum),
	}
	pool := NewPool(1, coord, &fakeExecutor{}, 10*time.Millisecond)
	pool.Start(context.Background())
	defer pool.Stop()

	waitFor(t, 5*time.Second, func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		return len(coord.simple) >= 2
	})

	coord.mu.Lock()
	defer coord.mu.Unlock()
	if coord.simple[0].ProcessState.State != api.StateRunning {
		t.Fatalf("first report = %s, want RUNNING", coord.simple[0].ProcessState.State)
	}
	if coord.simple[1].ProcessState.State != api.StateSucceeded {
		t.Fatalf("second report = %s, want SUCCEEDED", coord.simple[1].ProcessState.State)
	}
}

func TestLocalExecutorRunCommand(t *testing.T) {
	t.Parallel()
	exec := &LocalExecutor{LogDir: t.TempDir()}
	ctx := context.Background()

	job := &api.Job{JobID: "ok", PyCommand: &api.PyCommandJob{CommandLine: []string{"true"}}}
	state := exec.RunCommand(ctx, job)
	if state.State != api.StateSucceeded {
		t.Fatalf("true exited with state %s", state.State)
	}
	if state.PID == 0 {
		t.Fatalf("expected a pid to be recorded")
	}
	if len(state.LogFilePaths) != 1 {
		t.Fatalf("expected a log path, got %v", state.LogFilePaths)
	}

	job = &api.Job{JobID: "fail", PyCommand: &api.PyCommandJob{CommandLine: []string{"false"}}}
	state = exec.RunCommand(ctx, job)
	if state.State != api.StateNonZeroReturnCode {
		t.Fatalf("false exited with state %s", state.State)
	}
	if state.ReturnCode == 0 {
		t.Fatalf("expected a non-zero return code")
	}

	job = &api.Job{JobID: "missing", PyCommand: &api.PyCommandJob{CommandLine: []string{"definitely-not-a-binary-zgrid"}}}
	state = exec.RunCommand(ctx, job)
	if state.State != api.StateRunRequestFailed {
		t.Fatalf("missing binary exited with state %s", state.State)
	}
}

func TestLocalExecutorFunctionWithoutRunner(t *testing.T) {
	t.Parallel()
	exec := &LocalExecutor{}

	state := exec.RunFunction(context.Background(), &api.Job{JobID: "f1"},
		&api.PyFunctionJob{ModuleName: "m", FunctionName: "f"}, nil)
	if state.State != api.StateRunRequestFailed {
		t.Fatalf("function without runner = %s, want RUN_REQUEST_FAILED", state.State)
	}
}
