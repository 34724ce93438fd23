// Package debug manages the debugger side of a debug-mode run: port
// allocation, inspector readiness polling, and process-group termination.
package debug

import (
	"errors"
	"fmt"
	"net"
)

// portProbeAttempts bounds the sequential scan above the base port.
const portProbeAttempts = 20

// PortExhaustedError reports that no free port was found above the base.
type PortExhaustedError struct {
	Base     int
	Attempts int
}

func (e *PortExhaustedError) Error() string {
	return fmt.Sprintf("no free port in range %d-%d after %d attempts", e.Base, e.Base+e.Attempts-1, e.Attempts)
}

// IsPortExhausted checks if the error is or wraps a PortExhaustedError
func IsPortExhausted(err error) bool {
	var portErr *PortExhaustedError
	return err != nil && errors.As(err, &portErr)
}

// FindFreePort binds and immediately releases ports base, base+1, ... and
// returns the first one that binds. The port must be claimed before the
// runner subprocess is told to expose its inspector there; probing by bind
// keeps concurrent instances from colliding on the same base.
func FindFreePort(base int) (int, error) {
	for i := 0; i < portProbeAttempts; i++ {
		port := base + i
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		if err := ln.Close(); err != nil {
			continue
		}
		return port, nil
	}
	return 0, &PortExhaustedError{Base: base, Attempts: portProbeAttempts}
}
