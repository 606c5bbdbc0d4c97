//go:build !windows

package infra

import (
	"syscall"
)

// terminate sends SIGTERM to the backend's process group, falling back to
// the single PID when it does not lead a group.
func terminate(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}
