package applier

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glubean/runcore/types"
)

type stepCall struct {
	id    string
	step  int
	state types.RunState
	msgs  []types.FailureMessage
}

type recordingSink struct {
	states   map[string]types.RunState
	output   map[string][]string
	failures map[string][]types.FailureMessage
	steps    []stepCall
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		states:   make(map[string]types.RunState),
		output:   make(map[string][]string),
		failures: make(map[string][]types.FailureMessage),
	}
}

func (s *recordingSink) OnStateChange(id string, state types.RunState) {
	s.states[id] = state
}

func (s *recordingSink) OnOutput(id string, text string) {
	s.output[id] = append(s.output[id], text)
}

func (s *recordingSink) OnFailure(id string, msg types.FailureMessage) {
	s.failures[id] = append(s.failures[id], msg)
}

func (s *recordingSink) OnStepResult(id string, step int, state types.RunState, msgs []types.FailureMessage) {
	s.steps = append(s.steps, stepCall{id: id, step: step, state: state, msgs: msgs})
}

func boolPtr(b bool) *bool { return &b }

func newApplier() *Applier {
	return New(Config{Log: log.New()})
}

func TestApplyZeroMatchesMarksSkipped(t *testing.T) {
	sink := newRecordingSink()
	items := []types.TestItem{{ID: "declared-but-absent", Name: "absent"}}
	artifact := &types.ResultArtifact{
		Tests: []types.TestResult{{TestID: "someone-else", Success: true}},
	}

	newApplier().Apply(items, artifact, sink)

	assert.Equal(t, types.StateSkipped, sink.states["declared-but-absent"])
	assert.Empty(t, sink.failures["declared-but-absent"])
}

func TestApplyMixedArtifact(t *testing.T) {
	sink := newRecordingSink()
	items := []types.TestItem{
		{ID: "t1", Name: "first"},
		{ID: "t2", Name: "second", Location: &types.SourceLocation{File: "api.test.ts", Line: 12}},
		{ID: "t3", Name: "third"},
	}
	artifact := &types.ResultArtifact{
		Summary: types.ArtifactSummary{Total: 3, Passed: 2, Failed: 1},
		Tests: []types.TestResult{
			{TestID: "t1", TestName: "first", Success: true, DurationMs: 10},
			{TestID: "t2", TestName: "second", Success: false, DurationMs: 20, Events: []types.Event{
				{Type: types.EventAssertion, Passed: boolPtr(false),
					Message: "status mismatch", Expected: "200", Actual: "404"},
			}},
			{TestID: "t3", TestName: "third", Success: true, DurationMs: 30},
		},
	}

	newApplier().Apply(items, artifact, sink)

	assert.Equal(t, types.StatePassed, sink.states["t1"])
	assert.Equal(t, types.StateFailed, sink.states["t2"])
	assert.Equal(t, types.StatePassed, sink.states["t3"])

	require.NotEmpty(t, sink.failures["t2"])
	msg := sink.failures["t2"][0]
	assert.Equal(t, "status mismatch", msg.Message)
	assert.Equal(t, "200", msg.Expected)
	assert.Equal(t, "404", msg.Actual)
	require.NotNil(t, msg.Location)
	assert.Equal(t, "api.test.ts:12", msg.Location.String())
}

func TestApplyVariantAggregation(t *testing.T) {
	sink := newRecordingSink()
	items := []types.TestItem{{ID: "param", Name: "parameterized"}}
	artifact := &types.ResultArtifact{
		Tests: []types.TestResult{
			{TestID: "param[small]", TestName: "parameterized small", Success: true, DurationMs: 5},
			{TestID: "param[large]", TestName: "parameterized large", Success: false, DurationMs: 7},
		},
	}

	newApplier().Apply(items, artifact, sink)

	// One failing variant fails the whole item.
	assert.Equal(t, types.StateFailed, sink.states["param"])
	require.NotEmpty(t, sink.failures["param"])
}

func TestApplyAllVariantsPass(t *testing.T) {
	sink := newRecordingSink()
	items := []types.TestItem{{ID: "param", Name: "parameterized"}}
	artifact := &types.ResultArtifact{
		Tests: []types.TestResult{
			{TestID: "param[a]", TestName: "variant a", Success: true, Events: []types.Event{
				{Type: types.EventLog, Message: "hello from a"},
			}},
			{TestID: "param[b]", TestName: "variant b", Success: true},
		},
	}

	newApplier().Apply(items, artifact, sink)

	assert.Equal(t, types.StatePassed, sink.states["param"])
	assert.Empty(t, sink.failures["param"])
	// Passing runs still surface their event summary.
	require.NotEmpty(t, sink.output["param"])
	assert.Contains(t, sink.output["param"][0], "hello from a")
}

func TestApplyFailureWithoutFailureEvents(t *testing.T) {
	sink := newRecordingSink()
	items := []types.TestItem{{ID: "t", Name: "quiet failure"}}
	artifact := &types.ResultArtifact{
		Tests: []types.TestResult{{TestID: "t", TestName: "quiet failure", Success: false}},
	}

	newApplier().Apply(items, artifact, sink)

	require.Len(t, sink.failures["t"], 1)
	assert.Equal(t, "Test failed", sink.failures["t"][0].Message)
}

func TestApplyFailureIncludesErrorEvents(t *testing.T) {
	sink := newRecordingSink()
	items := []types.TestItem{{ID: "t", Name: "crashes"}}
	artifact := &types.ResultArtifact{
		Tests: []types.TestResult{{TestID: "t", TestName: "crashes", Success: false, Events: []types.Event{
			{Type: types.EventError, Error: "connection refused"},
			{Type: types.EventLog, Message: "retrying"},
		}}},
	}

	newApplier().Apply(items, artifact, sink)

	msgs := sink.failures["t"]
	require.NotEmpty(t, msgs)
	assert.Equal(t, "connection refused", msgs[0].Message)

	// The last message is the supplementary event summary.
	last := msgs[len(msgs)-1].Message
	assert.Contains(t, last, "retrying")
}

func TestDefaultMatcher(t *testing.T) {
	m := NewDefaultMatcher()
	item := types.TestItem{ID: "suite/login"}

	tests := []struct {
		name   string
		testID string
		want   bool
	}{
		{name: "exact", testID: "suite/login", want: true},
		{name: "variant", testID: "suite/login[chrome]", want: true},
		{name: "prefix without bracket", testID: "suite/login2", want: false},
		{name: "unrelated", testID: "suite/logout", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Matches(item, types.TestResult{TestID: tt.testID})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanMessageStripsANSI(t *testing.T) {
	assert.Equal(t, "boom", cleanMessage("\x1b[31mboom\x1b[0m", "fallback"))
	assert.Equal(t, "fallback", cleanMessage("   ", "fallback"))
}

func TestConcatNamesInFailureSummary(t *testing.T) {
	got := types.ConcatNames([]string{"a", "b", "c"})
	assert.Equal(t, "a / b / c", got)
	assert.Equal(t, 2, strings.Count(got, "/"))
}
