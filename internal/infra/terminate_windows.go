//go:build windows

package infra

import (
	"github.com/tridentframe/launcher/internal/domain"
)

// terminate: Windows has no SIGTERM equivalent for console-less children,
// so callers go straight to KillTree.
func terminate(pid int) error {
	return domain.ErrTerminateUnsupported
}
