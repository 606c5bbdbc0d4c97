// Package infra implements infrastructure concerns (processes, ports, paths).
package infra

import (
	"errors"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tridentframe/launcher/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// IsRunning checks if a PID exists and has not become a zombie.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// Terminate sends the platform's polite stop request.
func (pm *ProcessManagerImpl) Terminate(pid int) error {
	return terminate(pid)
}

// KillTree force-kills descendants first, then the process itself.
// A process that is already gone is not an error.
func (pm *ProcessManagerImpl) KillTree(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return err
	}

	killDescendants(p)

	if err := p.Kill(); err != nil && pm.IsRunning(pid) {
		return err
	}
	return nil
}

func killDescendants(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		// ErrorNoChildren or the parent vanished
		return
	}
	for _, c := range children {
		killDescendants(c)
		_ = c.Kill()
	}
}

// ListenerPID returns the process listening on a local TCP port.
// found is true with pid 0 when the socket exists but its owner is not visible.
func (pm *ProcessManagerImpl) ListenerPID(port int) (int, bool, error) {
	conns, err := psnet.Connections("tcp")
	if err != nil {
		return 0, false, err
	}

	for _, c := range conns {
		if c.Status == "LISTEN" && int(c.Laddr.Port) == port {
			return int(c.Pid), true, nil
		}
	}
	return 0, false, nil
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
