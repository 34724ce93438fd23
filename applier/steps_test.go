package applier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glubean/runcore/types"
)

func intPtr(i int) *int { return &i }

func TestCorrelateStepsUnionsBracketAndStepIndex(t *testing.T) {
	events := []types.Event{
		{Type: types.EventStepStart, Index: intPtr(0)},
		{Type: types.EventLog, Message: "inside step 0"},
		{Type: types.EventStepEnd, Index: intPtr(0), Status: "passed"},
		{Type: types.EventStepStart, Index: intPtr(1)},
		{Type: types.EventAssertion, Passed: boolPtr(false), Message: "bracketed failure"},
		{Type: types.EventStepEnd, Index: intPtr(1), Status: "failed"},
		// Emitted after the bracket closed but explicitly attributed.
		{Type: types.EventLog, Message: "late async log", StepIndex: intPtr(1)},
	}

	outcomes := correlateSteps(events)
	require.Len(t, outcomes, 2)

	assert.Equal(t, 0, outcomes[0].index)
	assert.Equal(t, "passed", outcomes[0].status)
	require.Len(t, outcomes[0].events, 1)

	assert.Equal(t, 1, outcomes[1].index)
	assert.Equal(t, "failed", outcomes[1].status)
	require.Len(t, outcomes[1].events, 2)
	assert.Equal(t, "bracketed failure", outcomes[1].events[0].Message)
	assert.Equal(t, "late async log", outcomes[1].events[1].Message)
}

func TestCorrelateStepsNoDuplicateAttribution(t *testing.T) {
	// An event both inside a bracket and carrying a stepIndex must appear once.
	events := []types.Event{
		{Type: types.EventStepStart, Index: intPtr(2)},
		{Type: types.EventLog, Message: "both conventions", StepIndex: intPtr(2)},
		{Type: types.EventStepEnd, Index: intPtr(2), Status: "passed"},
	}

	outcomes := correlateSteps(events)
	require.Len(t, outcomes, 1)
	assert.Len(t, outcomes[0].events, 1)
}

func TestCorrelateStepsBracketWinsOverStepIndex(t *testing.T) {
	events := []types.Event{
		{Type: types.EventStepStart, Index: intPtr(0)},
		// Conflicting attribution: emitted inside step 0's bracket but
		// claiming step 1.
		{Type: types.EventLog, Message: "disputed", StepIndex: intPtr(1)},
		{Type: types.EventStepEnd, Index: intPtr(0), Status: "passed"},
	}

	outcomes := correlateSteps(events)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 0, outcomes[0].index)
	require.Len(t, outcomes[0].events, 1)
	assert.Equal(t, "disputed", outcomes[0].events[0].Message)
}

func TestApplyStepsSkipsStepWithoutEnd(t *testing.T) {
	sink := newRecordingSink()
	item := types.TestItem{ID: "t"}
	events := []types.Event{
		{Type: types.EventStepStart, Index: intPtr(0)},
		{Type: types.EventLog, Message: "never finished"},
	}

	newApplier().applySteps(item, events, sink)
	assert.Empty(t, sink.steps, "a step with no step_end has no verdict")
}

func TestApplyStepsReportsVerdicts(t *testing.T) {
	sink := newRecordingSink()
	loc := &types.SourceLocation{File: "flow.test.ts", Line: 30}
	item := types.TestItem{ID: "t", Location: loc}
	events := []types.Event{
		{Type: types.EventStepStart, Index: intPtr(0)},
		{Type: types.EventStepEnd, Index: intPtr(0), Status: "passed"},
		{Type: types.EventStepStart, Index: intPtr(1)},
		{Type: types.EventAssertion, Passed: boolPtr(false), Message: "wrong header"},
		{Type: types.EventStepEnd, Index: intPtr(1), Status: "failed"},
	}

	newApplier().applySteps(item, events, sink)
	require.Len(t, sink.steps, 2)

	assert.Equal(t, types.StatePassed, sink.steps[0].state)
	assert.Empty(t, sink.steps[0].msgs)

	failed := sink.steps[1]
	assert.Equal(t, 1, failed.step)
	assert.Equal(t, types.StateFailed, failed.state)
	require.NotEmpty(t, failed.msgs)
	assert.Equal(t, "wrong header", failed.msgs[0].Message)
	// Steps have no location of their own; the parent test's is used.
	assert.Same(t, loc, failed.msgs[0].Location)
}

func TestStepFailuresFallback(t *testing.T) {
	loc := &types.SourceLocation{File: "a.ts", Line: 1}
	msgs := stepFailures(loc, stepOutcome{index: 0, status: "failed"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Step failed", msgs[0].Message)
	assert.Same(t, loc, msgs[0].Location)
}
