// Package applier maps a parsed result artifact onto declared test items,
// producing verdicts, failure messages and human-readable summaries.
package applier

import (
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/glubean/runcore/types"
)

var _ Matcher = (*defaultMatcher)(nil)

// Matcher decides whether an artifact entry belongs to a declared test item.
// Data-driven tests may produce several entries per item.
type Matcher interface {
	Matches(item types.TestItem, result types.TestResult) bool
}

type defaultMatcher struct{}

// NewDefaultMatcher matches on exact test ID, or on a variant suffix the
// runner appends for data-driven tests ("<id>[variant]").
func NewDefaultMatcher() Matcher {
	return &defaultMatcher{}
}

func (m *defaultMatcher) Matches(item types.TestItem, result types.TestResult) bool {
	if result.TestID == item.ID {
		return true
	}
	return strings.HasPrefix(result.TestID, item.ID+"[")
}

// Applier applies one artifact to a set of test items, side-effecting the
// run sink with state transitions, output and failure messages.
type Applier struct {
	log     log.Logger
	matcher Matcher
}

// Config holds configuration for creating a new applier
type Config struct {
	Log     log.Logger
	Matcher Matcher
}

// New creates an Applier.
func New(cfg Config) *Applier {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Matcher == nil {
		cfg.Matcher = NewDefaultMatcher()
	}
	return &Applier{log: cfg.Log, matcher: cfg.Matcher}
}

// Apply matches every item against the artifact's entries and reports a
// verdict for each: skipped for zero matches, otherwise passed/failed from
// the AND of the matched entries' success flags. Passing items still get
// their event summary forwarded so logs and traces stay visible.
func (a *Applier) Apply(items []types.TestItem, artifact *types.ResultArtifact, sink types.RunSink) {
	for _, item := range items {
		matches := a.matchResults(item, artifact)
		if len(matches) == 0 {
			a.log.Debug("No results matched test item", "item", item.ID)
			sink.OnStateChange(item.ID, types.StateSkipped)
			continue
		}
		a.applyItem(item, matches, sink)
	}
}

func (a *Applier) matchResults(item types.TestItem, artifact *types.ResultArtifact) []types.TestResult {
	var matches []types.TestResult
	for _, result := range artifact.Tests {
		if a.matcher.Matches(item, result) {
			matches = append(matches, result)
		}
	}
	return matches
}

func (a *Applier) applyItem(item types.TestItem, matches []types.TestResult, sink types.RunSink) {
	success := true
	var durationMs int64
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		success = success && m.Success
		durationMs += m.DurationMs
		names = append(names, m.TestName)
	}
	displayName := types.ConcatNames(names)
	duration := time.Duration(durationMs) * time.Millisecond
	a.log.Debug("Applying result", "item", item.ID, "name", displayName,
		"matches", len(matches), "success", success, "duration", duration)

	// Variants share one step structure, so only the first matched entry's
	// events drive step correlation.
	a.applySteps(item, matches[0].Events, sink)

	if success {
		sink.OnStateChange(item.ID, types.StatePassed)
		for _, m := range matches {
			if summary := types.SummarizeEvents(m.Events); summary != "" {
				sink.OnOutput(item.ID, summary)
			}
		}
		return
	}

	for _, msg := range collectFailures(item.Location, matches) {
		sink.OnFailure(item.ID, msg)
	}
	sink.OnStateChange(item.ID, types.StateFailed)
}

// collectFailures gathers assertion failures and explicit error events from
// the matched entries, falling back to a generic message when the runner
// reported failure without a failure event, and always appending the full
// event summary as a supplementary message.
func collectFailures(loc *types.SourceLocation, matches []types.TestResult) []types.FailureMessage {
	var msgs []types.FailureMessage
	for _, m := range matches {
		for _, ev := range m.Events {
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
	}
	if len(msgs) == 0 {
		msgs = append(msgs, types.FailureMessage{Message: "Test failed", Location: loc})
	}

	var summaries []string
	for _, m := range matches {
		if s := types.SummarizeEvents(m.Events); s != "" {
			summaries = append(summaries, s)
		}
	}
	if len(summaries) > 0 {
		msgs = append(msgs, types.FailureMessage{
			Message:  stripansi.Strip(strings.Join(summaries, "\n")),
			Location: loc,
		})
	}
	return msgs
}

func cleanMessage(msg, fallback string) string {
	msg = strings.TrimSpace(stripansi.Strip(msg))
	if msg == "" {
		return fallback
	}
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
