//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// terminate sends SIGTERM to the process group led by pid.
func terminate(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		return syscall.Kill(pid, syscall.SIGTERM)
	}
	return nil
}

// kill sends SIGKILL to the process group led by pid.
func kill(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}

func isNoSuchProcess(err error) bool { return errors.Is(err, syscall.ESRCH) }

// processExists checks if a process exists (for tests)
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
