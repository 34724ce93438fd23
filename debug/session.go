package debug

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/glubean/runcore/executor"
	"github.com/glubean/runcore/types"
)

const (
	// ForceKillGrace is how long a signalled process group gets to exit
	// before the escalation to SIGKILL.
	ForceKillGrace = 2 * time.Second

	// DefaultSessionTimeout is the safety bound on a whole debug session.
	DefaultSessionTimeout = 5 * time.Minute
)

// Session owns one debug-launched runner process group. The process handle is
// never shared: all termination goes through Terminate, and the close of the
// underlying process is the single event all cleanup keys off.
type Session struct {
	cmd   *exec.Cmd
	log   log.Logger
	grace time.Duration

	// killFn performs the escalation kill. Swapped out in tests to observe
	// whether the escalation ever fires.
	killFn func(pid int) error

	mu         sync.Mutex
	terminated bool
	closed     bool
	killTimer  *time.Timer

	exited  chan struct{}
	outcome *types.RunOutcome
	waitErr error
}

// Launch spawns the runner in its own process group and begins streaming its
// output to sink. Fails only on spawn-level errors.
func Launch(logger log.Logger, command string, args []string, dir string, sink types.OutputSink) (*Session, error) {
	if logger == nil {
		logger = log.New()
	}
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &executor.SpawnError{Command: command, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &executor.SpawnError{Command: command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &executor.SpawnError{Command: command, Err: err}
	}
	logger.Debug("Debug session process started", "command", command, "pid", cmd.Process.Pid)

	s := &Session{
		cmd:    cmd,
		log:    logger,
		grace:  ForceKillGrace,
		killFn: forceKillGroup,
		exited: make(chan struct{}),
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		forward(stdoutPipe, &stdoutBuf, sink)
	}()
	go func() {
		defer wg.Done()
		forward(stderrPipe, &stderrBuf, sink)
	}()

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()

		exitCode := 0
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				exitCode = exitErr.ExitCode()
				waitErr = nil
			}
		}

		s.markClosed()
		s.mu.Lock()
		s.outcome = &types.RunOutcome{
			ExitCode: exitCode,
			Stdout:   stdoutBuf.String(),
			Stderr:   stderrBuf.String(),
		}
		s.waitErr = waitErr
		s.mu.Unlock()
		close(s.exited)
	}()

	return s, nil
}

// Pid returns the process group leader's PID.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Exited is closed once the process has closed and its outcome is available.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// Outcome returns the process outcome. Only valid after Exited is closed.
func (s *Session) Outcome() (*types.RunOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.waitErr
}

// Terminate signals the whole process group and arms a single force-kill
// timer for the grace period. Repeated calls are no-ops, so an error path
// followed by an unconditional cleanup path cannot double-signal a handle or
// arm a second timer.
func (s *Session) Terminate() {
	s.mu.Lock()
	if s.terminated || s.closed {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	pid := s.cmd.Process.Pid

	if err := terminateGroup(pid); err != nil {
		s.log.Debug("Group signal failed, signalling process alone", "pid", pid, "err", err)
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
	}

	s.killTimer = time.AfterFunc(s.grace, func() {
		s.log.Warn("Runner did not exit within grace period, force-killing group", "pid", pid, "grace", s.grace)
		_ = s.killFn(pid)
	})
	s.mu.Unlock()
}

// markClosed records the terminal close event and clears the force-kill
// timer, so a process that exits within the grace period never receives a
// stray SIGKILL against a reused or dead PID.
func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
	}
}

// AwaitEnd races the three ways a debug session ends and returns whichever
// fires first. Non-winning participants are disposed before returning.
func (s *Session) AwaitEnd(ctx context.Context, terminated <-chan struct{}, safety time.Duration) (EndReason, error) {
	if safety <= 0 {
		safety = DefaultSessionTimeout
	}
	timer := time.NewTimer(safety)

	watches := []*Watch{
		NewWatch("process-exit", s.exited, nil),
		NewWatch("session-terminated", terminated, nil),
		NewWatch("safety-timeout", timer.C, func() { timer.Stop() }),
	}
	idx, err := AwaitFirst(ctx, watches...)
	if err != nil {
		return "", err
	}
	s.log.Debug("Session end race resolved", "winner", watches[idx].Name())
	switch idx {
	case 0:
		return EndProcessExit, nil
	case 1:
		return EndSessionTerminated, nil
	default:
		return EndSafetyTimeout, nil
	}
}

func forward(r io.Reader, raw *strings.Builder, sink types.OutputSink) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			raw.WriteString(chunk)
			if sink != nil {
				sink.WriteOutput(executor.NormalizeCRLF(chunk))
			}
		}
		if err != nil {
			return
		}
	}
}
