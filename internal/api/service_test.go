package api

import (
	"errors"
	"testing"
)

func TestValidIdentifier(t *testing.T) {
	t.Parallel()

	valid := []string{"", "job-1", "my.job_2", "ABC", "a-b_c.d", "0"}
	for _, s := range valid {
		if !ValidIdentifier(s) {
			t.Fatalf("%q should be valid", s)
		}
	}

	invalid := []string{"has space", "a/b", "tab\t", "émile", "semi;colon", "a:b"}
	for _, s := range invalid {
		if ValidIdentifier(s) {
			t.Fatalf("%q should be invalid", s)
		}
	}
}

func TestValidateJobIdentifiers(t *testing.T) {
	t.Parallel()

	if err := ValidateJobIdentifiers("job-1", ""); err != nil {
		t.Fatalf("empty friendly name should be allowed: %v", err)
	}
	if err := ValidateJobIdentifiers("", "name"); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty job id should fail validation, got %v", err)
	}
	if err := ValidateJobIdentifiers("ok", "bad name"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad friendly name should fail validation, got %v", err)
	}
}

func TestTerminalStates(t *testing.T) {
	t.Parallel()

	terminal := []ProcessStateEnum{
		StateSucceeded, StatePythonException, StateNonZeroReturnCode,
		StateCancelled, StateRunRequestFailed,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	open := []ProcessStateEnum{
		StateRunRequested, StateAssigned, StateRunning,
		StateUnknown, StateErrorGettingState, StateRequestIsDuplicate,
	}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
