package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArtifact(t *testing.T) {
	src := `{
		"summary": {"total": 2, "passed": 1, "failed": 1, "durationMs": 150},
		"tests": [
			{"testId": "a", "testName": "a", "success": true, "durationMs": 50},
			{"testId": "b", "testName": "b", "success": false, "durationMs": 100,
			 "events": [{"type": "assertion", "passed": false, "expected": "1", "actual": "2"}]}
		]
	}`

	artifact, err := ParseArtifact(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 2, artifact.Summary.Total)
	require.Len(t, artifact.Tests, 2)
	require.Len(t, artifact.Tests[1].Events, 1)
	ev := artifact.Tests[1].Events[0]
	assert.Equal(t, EventAssertion, ev.Type)
	require.NotNil(t, ev.Passed)
	assert.False(t, *ev.Passed)
}

func TestParseArtifactMalformed(t *testing.T) {
	_, err := ParseArtifact(strings.NewReader(`{"summary":`))
	require.Error(t, err)
}

func TestEventDescribe(t *testing.T) {
	passed := false
	idx := 2

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "failed assertion",
			ev:   Event{Type: EventAssertion, Passed: &passed, Message: "status", Expected: "200", Actual: "404"},
			want: `assertion failed: status (expected "200", actual "404")`,
		},
		{
			name: "error with message only",
			ev:   Event{Type: EventError, Message: "boom"},
			want: "error: boom",
		},
		{
			name: "step end",
			ev:   Event{Type: EventStepEnd, Index: &idx, Status: "failed"},
			want: "step 2 ended (failed)",
		},
		{
			name: "log",
			ev:   Event{Type: EventLog, Message: "note"},
			want: "log: note",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.Describe())
		})
	}
}

func TestSummarizeEvents(t *testing.T) {
	assert.Equal(t, "", SummarizeEvents(nil))

	out := SummarizeEvents([]Event{
		{Type: EventLog, Message: "first"},
		{Type: EventWarning, Message: "careful"},
	})
	assert.Contains(t, out, "log: first")
	assert.Contains(t, out, "warning: careful")
}
