package types

import (
	"fmt"
	"strings"
	"time"
)

// RunState represents the possible states of a task or test item
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StatePassed  RunState = "passed"
	StateFailed  RunState = "failed"
	StateSkipped RunState = "skipped"
	StateErrored RunState = "errored"
	StateTimeout RunState = "timeout"
)

// Terminal reports whether the state is a terminal run outcome.
// StateIdle and StateRunning are the only non-terminal states.
func (s RunState) Terminal() bool {
	return s != StateIdle && s != StateRunning
}

// CanTransition reports whether a transition from s to next is legal.
// A task may only be (re-)dispatched from idle or from a terminal state,
// and may only reach a terminal state from running.
func (s RunState) CanTransition(next RunState) bool {
	switch next {
	case StateRunning:
		return s != StateRunning
	case StatePassed, StateFailed, StateSkipped, StateErrored, StateTimeout:
		return s == StateRunning
	default:
		return false
	}
}

// RunRequest describes one invocation of the external runner.
// It is created per dispatch and owned by the orchestrator for its lifetime.
type RunRequest struct {
	TaskName string
	Command  string
	Args     []string
	WorkDir  string
	Debug    bool

	// Terminated is an optional notification from the debugger collaborator
	// that the debug session for this run has ended. Only read for debug runs.
	Terminated <-chan struct{}
}

// RunOutcome captures the result of one runner process. Immutable once produced.
type RunOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// LastRunRecord is the persisted summary of the most recent completed run
// for a (workspaceRoot, taskName) pair. Overwritten on each completed run.
type LastRunRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	DurationMs int64     `json:"durationMs"`
	TaskName   string    `json:"taskName,omitempty"`
}

// SourceLocation points at the declaration of a test item in the workspace.
type SourceLocation struct {
	File string
	Line int
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// TestItem is a logical test declared in the workspace, matched against
// zero or more result entries from the artifact.
type TestItem struct {
	ID       string
	Name     string
	Location *SourceLocation
}

// FailureMessage is a structured failure surfaced to the UI sink,
// optionally carrying expected/actual payloads and a source location.
type FailureMessage struct {
	Message  string
	Expected string
	Actual   string
	Location *SourceLocation
}

// OutputSink receives streamed process output. Implementations define the
// line-ending contract; the executor normalizes chunks to CRLF before
// forwarding, per the host terminal collaborator's requirement.
type OutputSink interface {
	WriteOutput(text string)
}

// RunSink is the UI collaborator boundary. The core produces state
// transitions, output text and structured failure messages; it never renders.
type RunSink interface {
	OnStateChange(id string, state RunState)
	OnOutput(id string, text string)
	OnFailure(id string, msg FailureMessage)
	OnStepResult(id string, step int, state RunState, msgs []FailureMessage)
}

// ConcatNames joins display names of matched results for data-driven tests.
func ConcatNames(names []string) string {
	return strings.Join(names, " / ")
}
