//go:build !windows

package infra

import (
	"syscall"
)

// sysProcAttr puts the backend in its own process group so the whole
// group can be signalled on shutdown.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
