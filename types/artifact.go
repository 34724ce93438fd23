package types

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventType identifies the kind of a runner event
type EventType string

const (
	EventTrace     EventType = "trace"
	EventAssertion EventType = "assertion"
	EventLog       EventType = "log"
	EventMetric    EventType = "metric"
	EventError     EventType = "error"
	EventStatus    EventType = "status"
	EventStepStart EventType = "step_start"
	EventStepEnd   EventType = "step_end"
	EventWarning   EventType = "warning"
)

// Event is a single entry in a test's flat event stream.
// Fields are optional depending on the event type.
type Event struct {
	Type       EventType `json:"type"`
	Message    string    `json:"message,omitempty"`
	Passed     *bool     `json:"passed,omitempty"`
	Expected   string    `json:"expected,omitempty"`
	Actual     string    `json:"actual,omitempty"`
	Error      string    `json:"error,omitempty"`
	Index      *int      `json:"index,omitempty"`
	StepIndex  *int      `json:"stepIndex,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// TestResult is one test's entry in the result artifact. A data-driven test
// may produce several entries sharing one declared test item.
type TestResult struct {
	TestID     string  `json:"testId"`
	TestName   string  `json:"testName"`
	Success    bool    `json:"success"`
	DurationMs int64   `json:"durationMs"`
	Events     []Event `json:"events,omitempty"`
}

// ArtifactSummary aggregates one invocation's counts.
type ArtifactSummary struct {
	Total      int   `json:"total"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	DurationMs int64 `json:"durationMs"`
}

// ResultArtifact is the structured file the runner writes after each
// invocation. Read-only once parsed; lifetime is one run's processing.
type ResultArtifact struct {
	Summary ArtifactSummary `json:"summary"`
	Tests   []TestResult    `json:"tests"`
}

// ParseArtifact decodes a result artifact. Callers must tolerate errors:
// the file may be absent or partially written while the runner is flushing.
func ParseArtifact(r io.Reader) (*ResultArtifact, error) {
	var artifact ResultArtifact
	dec := json.NewDecoder(r)
	if err := dec.Decode(&artifact); err != nil {
		return nil, fmt.Errorf("malformed result artifact: %w", err)
	}
	return &artifact, nil
}

// Describe renders a single event as one human-readable line.
func (e Event) Describe() string {
	switch e.Type {
	case EventAssertion:
		outcome := "passed"
		if e.Passed != nil && !*e.Passed {
			outcome = "failed"
		}
		line := fmt.Sprintf("assertion %s", outcome)
		if e.Message != "" {
			line += ": " + e.Message
		}
		if e.Expected != "" || e.Actual != "" {
			line += fmt.Sprintf(" (expected %q, actual %q)", e.Expected, e.Actual)
		}
		return line
	case EventError:
		if e.Error != "" {
			return "error: " + e.Error
		}
		return "error: " + e.Message
	case EventMetric:
		if e.DurationMs > 0 {
			return fmt.Sprintf("metric: %s (%dms)", e.Message, e.DurationMs)
		}
		return "metric: " + e.Message
	case EventStepStart:
		return fmt.Sprintf("step %d started", deref(e.Index))
	case EventStepEnd:
		return fmt.Sprintf("step %d ended (%s)", deref(e.Index), e.Status)
	case EventStatus:
		return "status: " + e.Status
	case EventWarning:
		return "warning: " + e.Message
	default:
		return string(e.Type) + ": " + e.Message
	}
}

// SummarizeEvents renders a full event block for the output sink.
// Returns "" when there is nothing worth showing.
func SummarizeEvents(events []Event) string {
	if len(events) == 0 {
		return ""
	}
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.Describe())
		b.WriteString("\n")
	}
	return b.String()
}

func deref(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
