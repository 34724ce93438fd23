package runcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/glubean/runcore/types"
)

func TestWorseState(t *testing.T) {
	assert.Equal(t, types.StatePassed, worseState(types.StatePassed, types.StatePassed))
	assert.Equal(t, types.StateFailed, worseState(types.StatePassed, types.StateFailed))
	assert.Equal(t, types.StateFailed, worseState(types.StateFailed, types.StateSkipped))
	assert.Equal(t, types.StateTimeout, worseState(types.StateFailed, types.StateTimeout))
	assert.Equal(t, types.StateErrored, worseState(types.StateTimeout, types.StateErrored))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.5s", formatDuration(500*time.Millisecond))
	assert.Equal(t, "90.0s", formatDuration(90*time.Second))
}

func TestGetResultString(t *testing.T) {
	assert.Equal(t, "pass", getResultString(types.StatePassed))
	assert.Equal(t, "fail", getResultString(types.StateFailed))
	assert.Equal(t, "timeout", getResultString(types.StateTimeout))
	assert.Equal(t, "error", getResultString(types.StateErrored))
}
