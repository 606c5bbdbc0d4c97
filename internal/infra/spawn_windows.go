//go:build windows

package infra

import (
	"syscall"
)

// sysProcAttr hides the backend's console window and detaches it from the
// launcher's console control events.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
