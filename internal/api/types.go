// Package api defines the coordinator RPC message schema shared by the
// server, the clients, and the coordinator itself. Field names are stable:
// they are the wire contract.
package api

// ProcessStateEnum enumerates the lifecycle states of a job or task process.
type ProcessStateEnum string

const (
	StateRunRequested       ProcessStateEnum = "RUN_REQUESTED"
	StateAssigned           ProcessStateEnum = "ASSIGNED"
	StateRunning            ProcessStateEnum = "RUNNING"
	StateSucceeded          ProcessStateEnum = "SUCCEEDED"
	StatePythonException    ProcessStateEnum = "PYTHON_EXCEPTION"
	StateNonZeroReturnCode  ProcessStateEnum = "NON_ZERO_RETURN_CODE"
	StateCancelled          ProcessStateEnum = "CANCELLED"
	StateRunRequestFailed   ProcessStateEnum = "RUN_REQUEST_FAILED"
	StateUnknown            ProcessStateEnum = "UNKNOWN"
	StateErrorGettingState  ProcessStateEnum = "ERROR_GETTING_STATE"
	StateRequestIsDuplicate ProcessStateEnum = "REQUEST_IS_DUPLICATE"
)

// Terminal reports whether the state is final: once a process reaches a
// terminal state, later updates must not move it back out.
func (s ProcessStateEnum) Terminal() bool {
	switch s {
	case StateSucceeded, StatePythonException, StateNonZeroReturnCode,
		StateCancelled, StateRunRequestFailed:
		return true
	default:
		return false
	}
}

// ProcessState is the state of a process plus whatever side information the
// state implies (pid while running, return code and pickled result when
// finished, log paths when available).
type ProcessState struct {
	State         ProcessStateEnum `json:"state"`
	PID           int              `json:"pid,omitempty"`
	ReturnCode    int              `json:"return_code,omitempty"`
	PickledResult []byte           `json:"pickled_result,omitempty"`
	LogFilePaths  []string         `json:"log_file_paths,omitempty"`
}

// Job is a submission to the coordinator. Exactly one of PyCommand,
// PyFunction, or PyGrid must be set. A Job with an empty JobID is the
// "no work available" sentinel returned by GetNextJob.
type Job struct {
	JobID           string         `json:"job_id"`
	JobFriendlyName string         `json:"job_friendly_name"`
	Priority        int32          `json:"priority"`
	PyCommand       *PyCommandJob  `json:"py_command,omitempty"`
	PyFunction      *PyFunctionJob `json:"py_function,omitempty"`
	PyGrid          *PyGridJob     `json:"py_grid,omitempty"`
}

// Empty reports whether this is the no-work sentinel.
func (j *Job) Empty() bool { return j == nil || j.JobID == "" }

// PyCommandJob runs a single command line once. CommandLine is argv, not a
// shell string.
type PyCommandJob struct {
	CommandLine          []string `json:"command_line"`
	EnvironmentVariables []string `json:"environment_variables,omitempty"`
}

// PyFunctionJob runs module_name.function_name(*args) once on a worker.
type PyFunctionJob struct {
	ModuleName               string `json:"module_name"`
	FunctionName             string `json:"function_name"`
	PickledFunctionArguments []byte `json:"pickled_function_arguments,omitempty"`
}

// PyGridJob runs the same function over many independently scheduled tasks.
// Tasks is only populated on submission; the coordinator strips it from the
// retained Job and hands tasks out one by one.
type PyGridJob struct {
	Function      *PyFunctionJob `json:"function,omitempty"`
	Tasks         []GridTask     `json:"tasks,omitempty"`
	AllTasksAdded bool           `json:"all_tasks_added"`
}

// GridTask is one unit of work within a grid job. TaskID -1 is the protocol
// stop signal ("no task"); negative ids are otherwise reserved.
type GridTask struct {
	TaskID                   int64  `json:"task_id"`
	PickledFunctionArguments []byte `json:"pickled_function_arguments,omitempty"`
}

// NoTask is the stop-signal GridTask returned when there is nothing left to
// hand out (or when the request referenced an unknown job or task).
func NoTask() *GridTask { return &GridTask{TaskID: -1} }

// AddJobState is the outcome of an AddJob call.
type AddJobState string

const (
	AddJobAdded       AddJobState = "ADDED"
	AddJobIsDuplicate AddJobState = "IS_DUPLICATE"
)

type AddJobResponse struct {
	State AddJobState `json:"state,omitempty"`
}

type AddTasksToGridJobRequest struct {
	JobID         string     `json:"job_id"`
	Tasks         []GridTask `json:"tasks"`
	AllTasksAdded bool       `json:"all_tasks_added"`
}

type JobStateUpdate struct {
	JobID        string       `json:"job_id"`
	ProcessState ProcessState `json:"process_state"`
}

type JobStateUpdates struct {
	JobStates []JobStateUpdate `json:"job_states"`
}

type UpdateStateResponse struct{}

type GridTaskUpdateAndGetNextRequest struct {
	JobID string `json:"job_id"`
	// TaskID -1 means "no update, just give me a task".
	TaskID       int64        `json:"task_id"`
	ProcessState ProcessState `json:"process_state"`
}

type JobStatesRequest struct {
	JobIDs []string `json:"job_ids"`
}

type ProcessStates struct {
	ProcessStates []ProcessState `json:"process_states"`
}

type GridTaskStatesRequest struct {
	JobID           string  `json:"job_id"`
	TaskIDsToIgnore []int64 `json:"task_ids_to_ignore,omitempty"`
}

type GridTaskState struct {
	TaskID       int64        `json:"task_id"`
	ProcessState ProcessState `json:"process_state"`
}

type GridTaskStates struct {
	TaskStates []GridTaskState `json:"task_states"`
}

// Stats is the coordinator's health snapshot.
type Stats struct {
	SimpleJobs      int `json:"simple_jobs"`
	GridJobs        int `json:"grid_jobs"`
	UnassignedTasks int `json:"unassigned_tasks"`
}
