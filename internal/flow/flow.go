// Package flow bridges the job-runner service into an event-log consumer:
// it launches runs, polls process states, and translates them into job
// payload events.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zgrid/internal/api"
	"zgrid/internal/runner"
)

// ErrNotImplemented marks process states whose handling is an open design
// question; callers see the gap explicitly instead of silently succeeding.
var ErrNotImplemented = errors.New("not implemented")

// JobPayload is the event-log payload for one run of a job.
type JobPayload struct {
	RequestID   string
	State       string
	FailureType string
	PID         int
	ReturnCode  int
	Result      []byte
}

// Event is one append to the event log.
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   JobPayload
}

// EventLog is an append-only in-memory log of job payload events, indexed
// by topic.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func NewEventLog() *EventLog {
	return &EventLog{now: time.Now}
}

// Append stamps and records an event.
func (l *EventLog) Append(topic string, payload JobPayload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{Topic: topic, Timestamp: l.now(), Payload: payload})
}

// Last returns the most recent event for topic.
func (l *EventLog) Last(topic string) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Topic == topic {
			return l.events[i], true
		}
	}
	return Event{}, false
}

// Events returns a snapshot of every event for topic, oldest first.
func (l *EventLog) Events(topic string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// StateClient is the slice of the runner client the flow runner needs.
type StateClient interface {
	RunFunction(ctx context.Context, requestID string, fn runner.DeployedFunction) (api.ProcessState, error)
	GetProcessStates(ctx context.Context, requestIDs []string) ([]api.ProcessState, error)
}

// Runner launches deployed functions on a runner service and keeps the
// event log in sync with their process states.
type Runner struct {
	client StateClient
	log    *EventLog
}

func NewRunner(client StateClient, log *EventLog) *Runner {
	return &Runner{client: client, log: log}
}

// Run requests execution of fn under requestID and records the RUN_REQUESTED
// and RUNNING events.
func (r *Runner) Run(ctx context.Context, topic, requestID string, fn runner.DeployedFunction) error {
	r.log.Append(topic, JobPayload{RequestID: requestID, State: "RUN_REQUESTED"})

	result, err := r.client.RunFunction(ctx, requestID, fn)
	if err != nil {
		return fmt.Errorf("run %s: %w", topic, err)
	}

	switch result.State {
	case api.StateRequestIsDuplicate:
		return fmt.Errorf("request id %s was already in use: %w", requestID, ErrNotImplemented)
	case api.StateRunning:
		// A fast job can finish before this append happens, in which
		// case PollJobs already recorded a later state. RUNNING is only
		// appended while RUN_REQUESTED is still the last event, so the
		// log does not regress.
		if last, ok := r.log.Last(topic); ok && last.Payload.State != "RUN_REQUESTED" {
			return nil
		}
		r.log.Append(topic, JobPayload{RequestID: requestID, State: "RUNNING", PID: result.PID})
		return nil
	case api.StateRunRequestFailed:
		return fmt.Errorf("run request for %s failed: %w", topic, ErrNotImplemented)
	default:
		return fmt.Errorf("did not expect process state %s from run_function", result.State)
	}
}

// PollJobs fetches the current process state for every topic's last run and
// appends the translated payloads. A jump straight from RUN_REQUESTED to a
// terminal state interpolates a RUNNING event first.
func (r *Runner) PollJobs(ctx context.Context, topics []string) error {
	requestIDs := make([]string, 0, len(topics))
	lasts := make([]Event, 0, len(topics))
	for _, topic := range topics {
		last, ok := r.log.Last(topic)
		if !ok {
			slog.Warn("poll: no events for topic", "topic", topic)
			continue
		}
		requestIDs = append(requestIDs, last.Payload.RequestID)
		lasts = append(lasts, last)
	}
	if len(requestIDs) == 0 {
		return nil
	}

	states, err := r.client.GetProcessStates(ctx, requestIDs)
	if err != nil {
		return fmt.Errorf("poll process states: %w", err)
	}

	for i, state := range states {
		topic := lasts[i].Topic
		payload, err := translate(lasts[i].Payload.RequestID, state)
		if err != nil {
			return fmt.Errorf("topic %s request %s: %w", topic, lasts[i].Payload.RequestID, err)
		}

		last, _ := r.log.Last(topic)
		if last.Payload.State == payload.State {
			continue
		}
		if last.Payload.State == "RUN_REQUESTED" && payload.State != "RUNNING" {
			r.log.Append(topic, JobPayload{
				RequestID: payload.RequestID, State: "RUNNING", PID: payload.PID,
			})
		}
		r.log.Append(topic, payload)
	}
	return nil
}

// translate maps a runner process state onto a job payload. States whose
// handling is still open return ErrNotImplemented.
func translate(requestID string, state api.ProcessState) (JobPayload, error) {
	switch state.State {
	case api.StateRunRequested:
		return JobPayload{RequestID: requestID, State: "RUN_REQUESTED", PID: state.PID}, nil
	case api.StateRunning:
		return JobPayload{RequestID: requestID, State: "RUNNING", PID: state.PID}, nil
	case api.StateSucceeded:
		return JobPayload{
			RequestID: requestID, State: "SUCCEEDED",
			PID: state.PID, Result: state.PickledResult,
		}, nil
	case api.StateRunRequestFailed:
		return JobPayload{
			RequestID: requestID, State: "FAILED",
			FailureType: string(api.StateRunRequestFailed), Result: state.PickledResult,
		}, nil
	case api.StatePythonException:
		return JobPayload{
			RequestID: requestID, State: "FAILED",
			FailureType: string(api.StatePythonException),
			PID:         state.PID, Result: state.PickledResult,
		}, nil
	case api.StateNonZeroReturnCode:
		return JobPayload{
			RequestID: requestID, State: "FAILED",
			FailureType: string(api.StateNonZeroReturnCode),
			PID:         state.PID, ReturnCode: state.ReturnCode,
		}, nil
	case api.StateCancelled, api.StateUnknown, api.StateErrorGettingState, api.StateRequestIsDuplicate:
		return JobPayload{}, fmt.Errorf("handling of process state %s: %w", state.State, ErrNotImplemented)
	default:
		return JobPayload{}, fmt.Errorf("did not expect process state %q", state.State)
	}
}
