//go:build unix

package debug

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup places the child in its own process group so a single
// signal against the negative PID reaches its descendants too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the whole process group.
func terminateGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGTERM)
}

// forceKillGroup sends the non-catchable SIGKILL to the process group.
func forceKillGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}
