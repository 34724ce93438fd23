package debug

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// occupy grabs 127.0.0.1:port for the duration of the test. Ports already in
// use by something else are just as occupied for our purposes.
func occupy(t *testing.T, port int) {
	t.Helper()
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return
	}
	t.Cleanup(func() { _ = l.Close() })
}

func TestFindFreePortReturnsBaseWhenFree(t *testing.T) {
	port, err := FindFreePort(19229)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 19229)
	assert.Less(t, port, 19229+portProbeAttempts)
}

func TestFindFreePortSkipsOccupiedPorts(t *testing.T) {
	base := 19340
	for p := base; p < base+5; p++ {
		occupy(t, p)
	}

	port, err := FindFreePort(base)
	require.NoError(t, err)
	assert.Equal(t, base+5, port)
}

func TestFindFreePortExhausted(t *testing.T) {
	base := 19460
	for p := base; p < base+portProbeAttempts; p++ {
		occupy(t, p)
	}

	_, err := FindFreePort(base)
	require.Error(t, err)
	assert.True(t, IsPortExhausted(err))
}
