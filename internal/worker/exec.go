package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"zgrid/internal/api"
	"zgrid/internal/runner"
)

// shortRunID is a compact unique suffix for runner request ids.
func shortRunID() string {
	return uuid.NewString()[:8]
}

// LocalExecutor runs command jobs as local processes and delegates function
// work to a runner service when one is configured.
type LocalExecutor struct {
	// Runner executes py_function work. When nil, function jobs fail
	// with RUN_REQUEST_FAILED.
	Runner *runner.Client
	// LogDir receives per-job output files; defaults to the OS temp dir.
	LogDir string
	// PollInterval paces runner state polling.
	PollInterval time.Duration
}

func (e *LocalExecutor) RunCommand(ctx context.Context, job *api.Job) api.ProcessState {
	argv := job.PyCommand.CommandLine
	if len(argv) == 0 {
		slog.Error("command job has an empty command line", "job_id", job.JobID)
		return api.ProcessState{State: api.StateRunRequestFailed}
	}

	logDir := e.LogDir
	if logDir == "" {
		logDir = os.TempDir()
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("zgrid-%s.log", job.JobID))
	logFile, err := os.Create(logPath)
	if err != nil {
		slog.Error("create job log file", "job_id", job.JobID, "err", err)
		return api.ProcessState{State: api.StateRunRequestFailed}
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if len(job.PyCommand.EnvironmentVariables) > 0 {
		cmd.Env = append(os.Environ(), job.PyCommand.EnvironmentVariables...)
	}

	if err := cmd.Start(); err != nil {
		slog.Error("start command", "job_id", job.JobID, "err", err)
		return api.ProcessState{State: api.StateRunRequestFailed, LogFilePaths: []string{logPath}}
	}
	pid := cmd.Process.Pid

	err = cmd.Wait()
	switch {
	case err == nil:
		return api.ProcessState{State: api.StateSucceeded, PID: pid, LogFilePaths: []string{logPath}}
	case ctx.Err() != nil:
		return api.ProcessState{State: api.StateCancelled, PID: pid, LogFilePaths: []string{logPath}}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return api.ProcessState{
				State: api.StateNonZeroReturnCode, PID: pid,
				ReturnCode: exitErr.ExitCode(), LogFilePaths: []string{logPath},
			}
		}
		slog.Error("wait for command", "job_id", job.JobID, "err", err)
		return api.ProcessState{State: api.StateRunRequestFailed, PID: pid, LogFilePaths: []string{logPath}}
	}
}

func (e *LocalExecutor) RunFunction(ctx context.Context, job *api.Job, fn *api.PyFunctionJob, pickledArgs []byte) api.ProcessState {
	if e.Runner == nil || fn == nil {
		slog.Error("no runner configured for function work", "job_id", job.JobID)
		return api.ProcessState{State: api.StateRunRequestFailed}
	}

	requestID := fmt.Sprintf("%s.%s", job.JobID, shortRunID())
	state, err := e.Runner.RunFunction(ctx, requestID, runner.DeployedFunction{
		ModuleName:               fn.ModuleName,
		FunctionName:             fn.FunctionName,
		PickledFunctionArguments: pickledArgs,
		// The runner's default interpreter; version drives the pickle
		// protocol choice.
		InterpreterVersion: runner.InterpreterVersion{Major: 3, Minor: 8},
	})
	if err != nil {
		slog.Error("run function", "job_id", job.JobID, "request_id", requestID, "err", err)
		return api.ProcessState{State: api.StateRunRequestFailed}
	}
	if state.State.Terminal() {
		return state
	}

	poll := e.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	for {
		if !sleep(ctx, poll) {
			return api.ProcessState{State: api.StateCancelled}
		}
		states, err := e.Runner.GetProcessStates(ctx, []string{requestID})
		if err != nil {
			slog.Warn("poll function state", "request_id", requestID, "err", err)
			continue
		}
		if s := states[0]; s.State.Terminal() || s.State == api.StateUnknown || s.State == api.StateErrorGettingState {
			return s
		}
	}
}
