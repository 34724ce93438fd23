package runcore

import (
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/glubean/runcore/types"
)

var _ types.RunSink = (*LogSink)(nil)

// LogSink is the console implementation of the run sink: state changes and
// failures go to the structured log, streamed output goes to the writer.
type LogSink struct {
	log log.Logger
	out io.Writer
}

// NewLogSink creates a sink logging to logger and mirroring output to out.
// A nil out discards streamed output.
func NewLogSink(logger log.Logger, out io.Writer) *LogSink {
	if logger == nil {
		logger = log.New()
	}
	return &LogSink{log: logger, out: out}
}

func (s *LogSink) OnStateChange(id string, state types.RunState) {
	s.log.Info("State changed", "id", id, "state", state)
}

func (s *LogSink) OnOutput(id string, text string) {
	if s.out != nil {
		_, _ = io.WriteString(s.out, text)
	}
}

func (s *LogSink) OnFailure(id string, msg types.FailureMessage) {
	args := []any{"id", id, "message", msg.Message}
	if msg.Expected != "" || msg.Actual != "" {
		args = append(args, "expected", msg.Expected, "actual", msg.Actual)
	}
	if msg.Location != nil {
		args = append(args, "location", msg.Location.String())
	}
	s.log.Warn("Test failure", args...)
}

func (s *LogSink) OnStepResult(id string, step int, state types.RunState, msgs []types.FailureMessage) {
	if state == types.StateFailed {
		for _, msg := range msgs {
			s.log.Warn("Step failure", "id", id, "step", step, "message", msg.Message)
		}
		return
	}
	s.log.Debug("Step result", "id", id, "step", step, "state", state)
}

// taskOutput adapts the run sink to the executor's output contract for one
// task's streamed process output.
type taskOutput struct {
	sink types.RunSink
	id   string
}

func (t taskOutput) WriteOutput(text string) {
	t.sink.OnOutput(t.id, text)
}
