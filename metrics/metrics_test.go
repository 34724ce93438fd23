package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/glubean/runcore/types"
)

func TestErrToLabel(t *testing.T) {
	assert.Equal(t, "nil", errToLabel(nil))
	assert.Equal(t, "connection_refused", errToLabel(errors.New("connection refused")))
	assert.Equal(t, "exit_code", errToLabel(errors.New("exit code: 2!")))
}

func TestIsTerminalState(t *testing.T) {
	assert.True(t, isTerminalState(types.StatePassed))
	assert.True(t, isTerminalState(types.StateTimeout))
	assert.False(t, isTerminalState(types.StateRunning))
	assert.False(t, isTerminalState(types.StateIdle))
}

func TestRecordRunIgnoresNonTerminalState(t *testing.T) {
	// Must not panic or record anything.
	RecordRun("task", "run-id", types.StateRunning, time.Second)
}
