package infra

import (
	"errors"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/tridentframe/launcher/internal/domain"
)

// DefaultPortEnv is the environment variable carrying the backend port.
const DefaultPortEnv = "BACKEND_PORT"

// pipeDrainTimeout bounds how long Wait keeps reading output after the
// backend exits, in case a grandchild still holds the pipes open.
const pipeDrainTimeout = 2 * time.Second

// ExecSpawner starts backends with os/exec.
type ExecSpawner struct {
	portEnv string
	logger  *zap.Logger
}

// NewSpawner creates a spawner. Backend stdout and stderr are written to
// logger line by line.
func NewSpawner(portEnv string, logger *zap.Logger) *ExecSpawner {
	if portEnv == "" {
		portEnv = DefaultPortEnv
	}
	return &ExecSpawner{portEnv: portEnv, logger: logger}
}

// Spawn starts target. The process is not tied to any context: once
// started it runs until it exits or is terminated.
func (s *ExecSpawner) Spawn(target domain.BackendTarget, port domain.PortAssignment) (domain.ProcessHandle, error) {
	cmd := exec.Command(target.Executable, target.Args...)
	cmd.Dir = target.WorkDir
	cmd.Env = append(os.Environ(), s.portEnv+"="+port.String())
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = pipeDrainTimeout

	stdout := &zapio.Writer{Log: s.logger.With(zap.String("stream", "stdout")), Level: zap.InfoLevel}
	stderr := &zapio.Writer{Log: s.logger.With(zap.String("stream", "stderr")), Level: zap.WarnLevel}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, err
	}

	return &execHandle{cmd: cmd, outputs: []*zapio.Writer{stdout, stderr}}, nil
}

type execHandle struct {
	cmd     *exec.Cmd
	outputs []*zapio.Writer
}

func (h *execHandle) PID() int {
	return h.cmd.Process.Pid
}

// Wait returns the exit code. A non-zero exit is not an error; err is set
// only when waiting itself failed. Killed processes report -1.
func (h *execHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	for _, w := range h.outputs {
		_ = w.Close()
	}

	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return code, err
	}
	return code, nil
}

// Ensure ExecSpawner implements domain.Spawner.
var _ domain.Spawner = (*ExecSpawner)(nil)
