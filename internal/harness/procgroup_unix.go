//go:build !windows

package harness

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the child process in its own process group and
// overrides cmd.Cancel to kill the entire group on context cancellation.
// Package-manager invocations fork helpers; without this they survive a
// timeout or interrupt as orphans.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
}
