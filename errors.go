package runcore

import (
	"errors"
	"fmt"
	"time"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, spawn failures, port exhaustion, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents a failure from test assertions (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// NoResultError reports that the runner exited without producing a result
// artifact within the grace period. The run ends in the errored state.
type NoResultError struct {
	Task     string
	ExitCode int
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("task %q exited with code %d and produced no results", e.Task, e.ExitCode)
}

// DispatchTimeoutError reports that a dispatch hit its per-run timeout
// before either a result artifact or a process exit resolved it.
type DispatchTimeoutError struct {
	Task    string
	Timeout time.Duration
}

func (e *DispatchTimeoutError) Error() string {
	return fmt.Sprintf("task %q produced no outcome within %v", e.Task, e.Timeout)
}

// AlreadyRunningError guards against concurrent re-dispatch of one task.
type AlreadyRunningError struct {
	Task string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("task %q is already running", e.Task)
}
