package applier

import (
	"sort"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/glubean/runcore/types"
)

// stepOutcome is the correlated view of one step of a test.
type stepOutcome struct {
	index  int
	status string
	events []types.Event
}

// correlateSteps partitions a flat event list into per-step buckets.
//
// Two attribution conventions are unioned: events recorded strictly between
// a step_start(index=i) and the matching step_end(index=i) belong to step i,
// and events carrying an explicit stepIndex field are attributed to that
// step even when emitted outside any open bracket (asynchronous
// instrumentation does this). An event satisfying both appears once; when
// the enclosing bracket and the stepIndex field disagree, the bracket wins.
// That tie-break is a deliberate choice, not inherited behavior.
func correlateSteps(events []types.Event) []stepOutcome {
	buckets := make(map[int]*stepOutcome)
	bucket := func(i int) *stepOutcome {
		if b, ok := buckets[i]; ok {
			return b
		}
		b := &stepOutcome{index: i}
		buckets[i] = b
		return b
	}

	open := -1
	for _, ev := range events {
		switch ev.Type {
		case types.EventStepStart:
			if ev.Index != nil {
				open = *ev.Index
				bucket(open)
			}
		case types.EventStepEnd:
			if ev.Index != nil {
				b := bucket(*ev.Index)
				b.status = ev.Status
				if open == *ev.Index {
					open = -1
				}
			}
		default:
			switch {
			case open >= 0:
				b := bucket(open)
				b.events = append(b.events, ev)
			case ev.StepIndex != nil:
				b := bucket(*ev.StepIndex)
				b.events = append(b.events, ev)
			}
		}
	}

	outcomes := make([]stepOutcome, 0, len(buckets))
	for _, b := range buckets {
		outcomes = append(outcomes, *b)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })
	return outcomes
}

// applySteps reports a per-step verdict for every step found in the event
// stream. Failed steps carry the parent test's source location, since steps
// have no independent location of their own.
func (a *Applier) applySteps(item types.TestItem, events []types.Event, sink types.RunSink) {
	for _, step := range correlateSteps(events) {
		if step.status != "failed" {
			state := types.StatePassed
			if step.status == "" {
				// step_end never arrived; don't claim a verdict.
				continue
			}
			sink.OnStepResult(item.ID, step.index, state, nil)
			continue
		}
		sink.OnStepResult(item.ID, step.index, types.StateFailed, stepFailures(item.Location, step))
	}
}

// stepFailures mirrors the test-level failure collection for one step.
func stepFailures(loc *types.SourceLocation, step stepOutcome) []types.FailureMessage {
	var msgs []types.FailureMessage
	for _, ev := range step.events {
		switch ev.Type {
		case types.EventAssertion:
			if ev.Passed != nil && !*ev.Passed {
				msgs = append(msgs, types.FailureMessage{
					Message:  cleanMessage(ev.Message, "Assertion failed"),
					Expected: ev.Expected,
					Actual:   ev.Actual,
					Location: loc,
				})
			}
		case types.EventError:
			msgs = append(msgs, types.FailureMessage{
				Message:  cleanMessage(firstNonEmpty(ev.Error, ev.Message), "Error"),
				Location: loc,
			})
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, types.FailureMessage{Message: "Step failed", Location: loc})
	}
	if summary := types.SummarizeEvents(step.events); summary != "" {
		msgs = append(msgs, types.FailureMessage{
			Message:  stripansi.Strip(strings.TrimSpace(summary)),
			Location: loc,
		})
	}
	return msgs
}
