// Package coordinator implements the in-memory grid coordinator: a job
// queue that accepts submissions, hands work to pull-based workers weighted
// by priority, and absorbs state updates.
//
// All state lives behind one mutex. Handlers never perform I/O while
// holding it; events for the hub are collected under the lock and published
// after release.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"zgrid/internal/api"
	"zgrid/internal/events"
)

type simpleJob struct {
	job       *api.Job
	state     api.ProcessState
	updatedAt time.Time
}

type gridTask struct {
	taskID      int64
	pickledArgs []byte
	state       api.ProcessState
	updatedAt   time.Time
}

type gridJob struct {
	job *api.Job

	// allTasks indexes every task ever added; unassigned points at the
	// same tasks, in FIFO dispatch order, and holds exactly the tasks
	// that have never been handed out.
	allTasks   map[int64]*gridTask
	unassigned []*gridTask

	allTasksAdded     bool
	numCurrentWorkers int
}

// Coordinator is the process-wide job queue. Construct one at server start
// and inject it into the RPC handlers.
type Coordinator struct {
	mu         sync.Mutex
	simpleJobs map[string]*simpleJob
	gridJobs   map[string]*gridJob

	rng  *rand.Rand
	now  func() time.Time
	sink events.Sink
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRand replaces the dispatcher's random source (tests use a fixed
// seed).
func WithRand(rng *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = rng }
}

// WithClock replaces the state-update timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithEventSink publishes state changes to sink.
func WithEventSink(sink events.Sink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		simpleJobs: make(map[string]*simpleJob),
		gridJobs:   make(map[string]*gridJob),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) publish(evts []events.Event) {
	if c.sink == nil || len(evts) == 0 {
		return
	}
	c.sink.Publish(evts...)
}

// AddJob queues a new job. Resubmitting an existing job_id is not an
// error: the response says IS_DUPLICATE and nothing changes.
func (c *Coordinator) AddJob(ctx context.Context, job *api.Job) (*api.AddJobResponse, error) {
	if err := api.ValidateJobIdentifiers(job.JobID, job.JobFriendlyName); err != nil {
		return nil, err
	}
	if job.Priority <= 0 {
		return nil, fmt.Errorf("priority must be greater than 0: %w", api.ErrValidation)
	}

	var evts []events.Event
	c.mu.Lock()
	defer func() { c.publish(evts) }()
	defer c.mu.Unlock()

	if _, ok := c.simpleJobs[job.JobID]; ok {
		return &api.AddJobResponse{State: api.AddJobIsDuplicate}, nil
	}
	if _, ok := c.gridJobs[job.JobID]; ok {
		return &api.AddJobResponse{State: api.AddJobIsDuplicate}, nil
	}

	now := c.now()
	switch {
	case job.PyCommand != nil || job.PyFunction != nil:
		c.simpleJobs[job.JobID] = &simpleJob{
			job:       retainJob(job),
			state:     api.ProcessState{State: api.StateRunRequested},
			updatedAt: now,
		}
	case job.PyGrid != nil:
		grid := &gridJob{job: retainJob(job), allTasks: make(map[int64]*gridTask)}
		// Tasks are imported before the sealing flag is applied so the
		// submission itself is never rejected by its own all_tasks_added.
		if err := c.addTasksLocked(grid, job.PyGrid.Tasks, now); err != nil {
			return nil, err
		}
		grid.allTasksAdded = job.PyGrid.AllTasksAdded
		c.gridJobs[job.JobID] = grid
	default:
		return nil, fmt.Errorf("job %s has no job spec: %w", job.JobID, api.ErrValidation)
	}

	evts = append(evts, events.Event{Type: events.TypeJobAdded, JobID: job.JobID, Time: now})
	return &api.AddJobResponse{State: api.AddJobAdded}, nil
}

// AddTasksToGridJob adds tasks to an existing grid job and optionally seals
// it.
func (c *Coordinator) AddTasksToGridJob(ctx context.Context, req *api.AddTasksToGridJobRequest) (*api.AddJobResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	grid, ok := c.gridJobs[req.JobID]
	if !ok {
		return nil, fmt.Errorf("job_id %s does not exist, so cannot add tasks to it: %w", req.JobID, api.ErrNotFound)
	}
	if err := c.addTasksLocked(grid, req.Tasks, c.now()); err != nil {
		return nil, err
	}
	if req.AllTasksAdded {
		grid.allTasksAdded = true
	}
	return &api.AddJobResponse{}, nil
}

// addTasksLocked imports tasks into a grid job. Duplicate task ids are
// logged and ignored; new tasks after sealing and negative ids fail.
// Callers hold the mutex.
func (c *Coordinator) addTasksLocked(grid *gridJob, tasks []api.GridTask, now time.Time) error {
	for _, task := range tasks {
		if _, ok := grid.allTasks[task.TaskID]; ok {
			slog.Info("ignoring duplicate task",
				"job_id", grid.job.JobID, "task_id", task.TaskID)
			continue
		}
		if grid.allTasksAdded {
			return fmt.Errorf(
				"tried to add tasks to job %s after it had already been marked as all_tasks_added: %w",
				grid.job.JobID, api.ErrValidation)
		}
		if task.TaskID < 0 {
			return fmt.Errorf("task_ids cannot be negative: %w", api.ErrValidation)
		}
		t := &gridTask{
			taskID:      task.TaskID,
			pickledArgs: task.PickledFunctionArguments,
			state:       api.ProcessState{State: api.StateRunRequested},
			updatedAt:   now,
		}
		grid.allTasks[task.TaskID] = t
		grid.unassigned = append(grid.unassigned, t)
	}
	return nil
}

// retainJob copies the submission for long-term retention. Grid tasks are
// stripped: workers fetch them one at a time, everything else in the Job is
// what they need to set up.
func retainJob(job *api.Job) *api.Job {
	retained := *job
	if job.PyGrid != nil {
		grid := *job.PyGrid
		grid.Tasks = nil
		retained.PyGrid = &grid
	}
	return &retained
}

// Stats snapshots queue depths for the health endpoint.
func (c *Coordinator) Stats() api.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := api.Stats{SimpleJobs: len(c.simpleJobs), GridJobs: len(c.gridJobs)}
	for _, g := range c.gridJobs {
		s.UnassignedTasks += len(g.unassigned)
	}
	return s
}
