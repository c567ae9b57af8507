package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"zgrid/internal/api"
	"zgrid/internal/events"
)

// candidate is a job eligible for dispatch.
type candidate struct {
	grid   *gridJob
	simple *simpleJob
}

func (cd candidate) priority() int64 {
	if cd.grid != nil {
		return int64(cd.grid.job.Priority)
	}
	return int64(cd.simple.job.Priority)
}

// GetNextJob hands one job to a worker, sampled with probability
// proportional to priority. Grid jobs are eligible while they have more
// queued tasks than attached workers; simple jobs while they are still
// RUN_REQUESTED. Returns the empty Job when nothing is available.
func (c *Coordinator) GetNextJob(ctx context.Context) (*api.Job, error) {
	var evts []events.Event
	c.mu.Lock()
	defer func() { c.publish(evts) }()
	defer c.mu.Unlock()

	var candidates []candidate
	for _, g := range c.gridJobs {
		if len(g.unassigned) > g.numCurrentWorkers {
			candidates = append(candidates, candidate{grid: g})
		}
	}
	for _, s := range c.simpleJobs {
		if s.state.State == api.StateRunRequested {
			candidates = append(candidates, candidate{simple: s})
		}
	}
	if len(candidates) == 0 {
		return &api.Job{}, nil
	}

	chosen := c.weightedChoice(candidates)
	now := c.now()
	if chosen.grid != nil {
		chosen.grid.numCurrentWorkers++
		evts = append(evts, events.Event{
			Type: events.TypeWorkerAttached, JobID: chosen.grid.job.JobID, Time: now,
		})
		return chosen.grid.job, nil
	}
	chosen.simple.state = api.ProcessState{State: api.StateAssigned}
	chosen.simple.updatedAt = now
	evts = append(evts, events.Event{
		Type: events.TypeJobState, JobID: chosen.simple.job.JobID,
		State: api.StateAssigned, Time: now,
	})
	return chosen.simple.job, nil
}

// weightedChoice samples one candidate with probability proportional to its
// priority. Priorities are validated positive at submission, so the total
// is always positive here. Callers hold the mutex.
func (c *Coordinator) weightedChoice(candidates []candidate) candidate {
	var total int64
	for _, cd := range candidates {
		total += cd.priority()
	}
	pick := c.rng.Int64N(total)
	for _, cd := range candidates {
		pick -= cd.priority()
		if pick < 0 {
			return cd
		}
	}
	return candidates[len(candidates)-1]
}

// UpdateGridTaskStateAndGetNext records the state of the task the worker
// just finished (TaskID -1 means no update) and hands out the next queued
// task. A -1 response tells the worker to stop working on this job; the
// worker count is decremented at that point, clamped at zero.
func (c *Coordinator) UpdateGridTaskStateAndGetNext(ctx context.Context, req *api.GridTaskUpdateAndGetNextRequest) (*api.GridTask, error) {
	var evts []events.Event
	c.mu.Lock()
	defer func() { c.publish(evts) }()
	defer c.mu.Unlock()

	grid, ok := c.gridJobs[req.JobID]
	if !ok {
		slog.Warn("task update for a grid job that does not exist",
			"job_id", req.JobID, "task_id", req.TaskID, "state", req.ProcessState.State)
		return api.NoTask(), nil
	}

	now := c.now()
	if req.TaskID != -1 {
		task, ok := grid.allTasks[req.TaskID]
		if !ok {
			slog.Warn("task update for a task that does not exist",
				"job_id", req.JobID, "task_id", req.TaskID, "state", req.ProcessState.State)
			// Something is off with this worker's view of the job; stop it.
			return api.NoTask(), nil
		}
		if task.state.State.Terminal() && task.state.State != req.ProcessState.State {
			slog.Warn("dropping state update that would leave a terminal state",
				"job_id", req.JobID, "task_id", req.TaskID,
				"have", task.state.State, "got", req.ProcessState.State)
		} else {
			task.state = req.ProcessState
			task.updatedAt = now
			evts = append(evts, events.Event{
				Type: events.TypeTaskState, JobID: req.JobID,
				TaskID: req.TaskID, State: req.ProcessState.State, Time: now,
			})
		}
	}

	if len(grid.unassigned) > 0 {
		task := grid.unassigned[0]
		grid.unassigned = grid.unassigned[1:]
		evts = append(evts, events.Event{
			Type: events.TypeTaskDispatched, JobID: req.JobID,
			TaskID: task.taskID, Time: now,
		})
		return &api.GridTask{TaskID: task.taskID, PickledFunctionArguments: task.pickledArgs}, nil
	}

	grid.numCurrentWorkers = max(0, grid.numCurrentWorkers-1)
	evts = append(evts, events.Event{
		Type: events.TypeWorkerDetached, JobID: req.JobID, Time: now,
	})
	return api.NoTask(), nil
}

// UpdateJobStates absorbs a batch of state reports. Unknown job ids and
// grid-job entries are logged and dropped: the per-task RPC is
// authoritative for grid jobs. An update that would move a simple job out
// of a terminal state is dropped too.
func (c *Coordinator) UpdateJobStates(ctx context.Context, req *api.JobStateUpdates) (*api.UpdateStateResponse, error) {
	var evts []events.Event
	c.mu.Lock()
	defer func() { c.publish(evts) }()
	defer c.mu.Unlock()

	now := c.now()
	for _, update := range req.JobStates {
		if simple, ok := c.simpleJobs[update.JobID]; ok {
			if simple.state.State.Terminal() && simple.state.State != update.ProcessState.State {
				slog.Warn("dropping state update that would leave a terminal state",
					"job_id", update.JobID,
					"have", simple.state.State, "got", update.ProcessState.State)
				continue
			}
			simple.state = update.ProcessState
			simple.updatedAt = now
			evts = append(evts, events.Event{
				Type: events.TypeJobState, JobID: update.JobID,
				State: update.ProcessState.State, Time: now,
			})
		} else if _, ok := c.gridJobs[update.JobID]; ok {
			slog.Info("ignoring whole-job state update for a grid job",
				"job_id", update.JobID, "state", update.ProcessState.State)
		} else {
			slog.Warn("state update for a job that does not exist, ignoring",
				"job_id", update.JobID, "state", update.ProcessState.State)
		}
	}
	return &api.UpdateStateResponse{}, nil
}

// GetSimpleJobStates returns one state per requested job id, in request
// order. Unknown ids report UNKNOWN.
func (c *Coordinator) GetSimpleJobStates(ctx context.Context, req *api.JobStatesRequest) (*api.ProcessStates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make([]api.ProcessState, 0, len(req.JobIDs))
	for _, id := range req.JobIDs {
		if simple, ok := c.simpleJobs[id]; ok {
			states = append(states, simple.state)
		} else {
			states = append(states, api.ProcessState{State: api.StateUnknown})
		}
	}
	return &api.ProcessStates{ProcessStates: states}, nil
}

// GetGridTaskStates returns the states of every task of the job whose id is
// not in the ignore set, ordered by task id.
func (c *Coordinator) GetGridTaskStates(ctx context.Context, req *api.GridTaskStatesRequest) (*api.GridTaskStates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	grid, ok := c.gridJobs[req.JobID]
	if !ok {
		return nil, fmt.Errorf("grid job_id %s does not exist: %w", req.JobID, api.ErrNotFound)
	}

	ignore := make(map[int64]struct{}, len(req.TaskIDsToIgnore))
	for _, id := range req.TaskIDsToIgnore {
		ignore[id] = struct{}{}
	}

	states := make([]api.GridTaskState, 0, len(grid.allTasks))
	for id, task := range grid.allTasks {
		if _, skip := ignore[id]; skip {
			continue
		}
		states = append(states, api.GridTaskState{TaskID: id, ProcessState: task.state})
	}
	slices.SortFunc(states, func(a, b api.GridTaskState) int {
		return int(a.TaskID - b.TaskID)
	})
	return &api.GridTaskStates{TaskStates: states}, nil
}
