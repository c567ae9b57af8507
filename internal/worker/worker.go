// Package worker runs the pull side of the coordinator protocol: a pool of
// goroutines that fetch jobs, execute them, and report states back.
package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"zgrid/internal/api"
)

// Coordinator is the slice of the coordinator client a worker needs.
type Coordinator interface {
	GetNextJob(ctx context.Context) (*api.Job, error)
	UpdateGridTaskStateAndGetNext(ctx context.Context, req *api.GridTaskUpdateAndGetNextRequest) (*api.GridTask, error)
	UpdateJobStates(ctx context.Context, req *api.JobStateUpdates) (*api.UpdateStateResponse, error)
}

// Executor runs the actual work. Implementations return the final
// ProcessState they observed: a terminal state, or UNKNOWN /
// ERROR_GETTING_STATE when the runner loses track of a function run. They
// never fail the worker loop.
type Executor interface {
	// RunCommand executes a simple command job.
	RunCommand(ctx context.Context, job *api.Job) api.ProcessState
	// RunFunction executes a function with the given pickled arguments
	// (the job's own arguments for simple function jobs, the task's for
	// grid tasks).
	RunFunction(ctx context.Context, job *api.Job, fn *api.PyFunctionJob, pickledArgs []byte) api.ProcessState
}

// Pool manages n workers polling one coordinator.
type Pool struct {
	n      int
	coord  Coordinator
	exec   Executor
	poll   time.Duration
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(n int, coord Coordinator, exec Executor, poll time.Duration) *Pool {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Pool{n: n, coord: coord, exec: exec, poll: poll}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.worker(ctx, uuid.NewString())
	}
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id string) {
	defer p.wg.Done()
	slog.Debug("worker started", "worker", id)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // keep polling until shutdown

	for {
		if ctx.Err() != nil {
			slog.Debug("worker stopping", "worker", id)
			return
		}

		job, err := p.coord.GetNextJob(ctx)
		if err != nil {
			wait := bo.NextBackOff()
			slog.Warn("get next job failed, backing off", "worker", id, "wait", wait, "err", err)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		bo.Reset()

		if job.Empty() {
			if !sleep(ctx, p.poll) {
				return
			}
			continue
		}

		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, workerID string, job *api.Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panic", "worker", workerID, "job_id", job.JobID,
				"panic", r, "stack", string(debug.Stack()))
			p.report(ctx, job.JobID, api.ProcessState{State: api.StateRunRequestFailed})
		}
	}()

	switch {
	case job.PyGrid != nil:
		p.runGrid(ctx, workerID, job)
	case job.PyCommand != nil:
		slog.Info("running command job", "worker", workerID, "job_id", job.JobID)
		p.report(ctx, job.JobID, api.ProcessState{State: api.StateRunning})
		state := p.exec.RunCommand(ctx, job)
		p.report(ctx, job.JobID, state)
	case job.PyFunction != nil:
		slog.Info("running function job", "worker", workerID, "job_id", job.JobID)
		p.report(ctx, job.JobID, api.ProcessState{State: api.StateRunning})
		state := p.exec.RunFunction(ctx, job, job.PyFunction, job.PyFunction.PickledFunctionArguments)
		p.report(ctx, job.JobID, state)
	default:
		slog.Error("job has no spec, dropping", "worker", workerID, "job_id", job.JobID)
	}
}

// runGrid drives the task loop: report the previous task's state, receive
// the next one, until the coordinator answers -1.
func (p *Pool) runGrid(ctx context.Context, workerID string, job *api.Job) {
	slog.Info("attached to grid job", "worker", workerID, "job_id", job.JobID)

	req := &api.GridTaskUpdateAndGetNextRequest{JobID: job.JobID, TaskID: -1}
	for {
		task, err := p.coord.UpdateGridTaskStateAndGetNext(ctx, req)
		if err != nil {
			slog.Warn("grid task update failed, detaching", "worker", workerID,
				"job_id", job.JobID, "err", err)
			return
		}
		if task.TaskID == -1 {
			slog.Info("no more tasks, detaching", "worker", workerID, "job_id", job.JobID)
			return
		}

		var fn *api.PyFunctionJob
		if job.PyGrid != nil {
			fn = job.PyGrid.Function
		}
		state := p.exec.RunFunction(ctx, job, fn, task.PickledFunctionArguments)
		req = &api.GridTaskUpdateAndGetNextRequest{
			JobID: job.JobID, TaskID: task.TaskID, ProcessState: state,
		}
	}
}

func (p *Pool) report(ctx context.Context, jobID string, state api.ProcessState) {
	_, err := p.coord.UpdateJobStates(ctx, &api.JobStateUpdates{
		JobStates: []api.JobStateUpdate{{JobID: jobID, ProcessState: state}},
	})
	if err != nil {
		slog.Warn("report job state failed", "job_id", jobID, "state", state.State, "err", err)
	}
}

// sleep waits for d, returning false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
