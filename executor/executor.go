// Package executor spawns the external runner process and streams its output.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/glubean/runcore/types"
)

var _ ProcessExecutor = (*processExecutor)(nil)

// ProcessExecutor runs the external runner binary as a child process.
// Arguments are passed as a discrete argv, never through a shell.
type ProcessExecutor interface {
	// Start spawns command with args in dir and returns once the process is
	// running. Spawn-level problems (binary missing, permission denied) are
	// reported synchronously as a SpawnError; nothing else happens in that
	// case, no listener is registered and no output is streamed.
	Start(ctx context.Context, command string, args []string, dir string, sink types.OutputSink) (*Process, error)

	// Execute is Start followed by a blocking wait for the outcome.
	Execute(ctx context.Context, command string, args []string, dir string, sink types.OutputSink) (*types.RunOutcome, error)
}

// Process is a started runner process. Its outcome becomes available once
// Exited is closed.
type Process struct {
	exited chan struct{}

	mu      sync.Mutex
	outcome *types.RunOutcome
	waitErr error
}

// Exited is closed when the process has closed and its outcome is available.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Outcome returns the process outcome. Only valid after Exited is closed.
func (p *Process) Outcome() (*types.RunOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome, p.waitErr
}

// SpawnError reports that the runner process could not be started at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsSpawnError checks if the error is or wraps a SpawnError
func IsSpawnError(err error) bool {
	var spawnErr *SpawnError
	return err != nil && errors.As(err, &spawnErr)
}

type processExecutor struct {
	log log.Logger
}

// New creates a ProcessExecutor.
func New(logger log.Logger) ProcessExecutor {
	if logger == nil {
		logger = log.New()
	}
	return &processExecutor{log: logger}
}

func (e *processExecutor) Start(ctx context.Context, command string, args []string, dir string, sink types.OutputSink) (*Process, error) {
	if command == "" {
		return nil, &SpawnError{Command: command, Err: errors.New("command cannot be empty")}
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Command: command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		// Reject before any cancellation listener exists.
		return nil, &SpawnError{Command: command, Err: err}
	}
	e.log.Debug("Runner process started", "command", command, "pid", cmd.Process.Pid, "dir", dir)

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		drainStream(stdoutPipe, &stdoutBuf, sink)
	}()
	go func() {
		defer wg.Done()
		drainStream(stderrPipe, &stderrBuf, sink)
	}()

	// Cancellation listener: one SIGTERM per dispatch, deregistered exactly
	// once at process close regardless of which path ends the run.
	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.log.Debug("Cancellation requested, signalling runner", "pid", cmd.Process.Pid)
			_ = cmd.Process.Signal(syscall.SIGTERM)
		case <-closed:
		}
	}()

	p := &Process{exited: make(chan struct{})}
	go func() {
		wg.Wait()
		waitErr := cmd.Wait()
		close(closed)

		exitCode := 0
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				exitCode = exitErr.ExitCode()
				waitErr = nil
			} else {
				waitErr = &SpawnError{Command: command, Err: waitErr}
			}
		}
		e.log.Debug("Runner process closed", "pid", cmd.Process.Pid, "exitCode", exitCode)

		p.mu.Lock()
		p.outcome = &types.RunOutcome{
			ExitCode: exitCode,
			Stdout:   stdoutBuf.String(),
			Stderr:   stderrBuf.String(),
		}
		p.waitErr = waitErr
		p.mu.Unlock()
		close(p.exited)
	}()

	return p, nil
}

func (e *processExecutor) Execute(ctx context.Context, command string, args []string, dir string, sink types.OutputSink) (*types.RunOutcome, error) {
	p, err := e.Start(ctx, command, args, dir, sink)
	if err != nil {
		return nil, err
	}
	<-p.Exited()
	outcome, err := p.Outcome()
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// drainStream forwards chunks in arrival order. The raw text is accumulated
// unmodified; the sink copy is normalized to CRLF.
func drainStream(r io.Reader, raw *strings.Builder, sink types.OutputSink) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			raw.WriteString(chunk)
			if sink != nil {
				sink.WriteOutput(NormalizeCRLF(chunk))
			}
		}
		if err != nil {
			return
		}
	}
}

// NormalizeCRLF rewrites line endings to CRLF without doubling up
// carriage returns already present in the text.
func NormalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
