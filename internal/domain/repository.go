package domain

import "context"

// ProcessManager handles OS process inspection and termination.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Terminate asks a process (and its group where supported) to exit.
	// Returns ErrTerminateUnsupported where the OS has no polite signal.
	Terminate(pid int) error

	// KillTree force-kills a process and all of its descendants.
	KillTree(pid int) error

	// ListenerPID returns the PID listening on a local TCP port, if any.
	ListenerPID(port int) (int, bool, error)
}

// ProcessHandle is a started OS process.
type ProcessHandle interface {
	PID() int

	// Wait blocks until the process exits. It must be called exactly once.
	Wait() (exitCode int, err error)
}

// Spawner creates backend processes.
type Spawner interface {
	// Spawn starts the target with the port exported to its environment.
	Spawn(target BackendTarget, port PortAssignment) (ProcessHandle, error)
}

// PortAllocator decides which port the backend gets for a run.
type PortAllocator interface {
	Allocate() (PortAssignment, error)
}

// TargetResolver maps mode and platform to a launch target.
type TargetResolver interface {
	Resolve(mode DeploymentMode, platform Platform, port PortAssignment) (BackendTarget, error)
}

// ReadinessProber checks whether something is serving on addr.
type ReadinessProber interface {
	Probe(ctx context.Context, addr string) error
}

// BackendSupervisor owns the lifecycle of the single backend process.
type BackendSupervisor interface {
	ResolvePort() (PortAssignment, error)
	ResolveTarget(mode DeploymentMode, platform Platform, port PortAssignment) (BackendTarget, error)
	Start(ctx context.Context, target BackendTarget, port PortAssignment) (SupervisedProcess, error)
	Stop(ctx context.Context) error
	State() SupervisorState
	Current() (SupervisedProcess, bool)
	Ready() <-chan struct{}
}

// Quitter requests application exit.
type Quitter interface {
	Quit()
}

// Surface is the rendering backend that owns real windows.
// All methods except Run and Quit are called from the lifecycle loop.
type Surface interface {
	Quitter

	// Create opens a window for spec and returns its handle.
	Create(spec WindowSpec) (WindowHandle, error)

	// Load points the window at a content source.
	Load(h WindowHandle, src ContentSource) error

	// OpenDevTools opens the developer tools for a window.
	OpenDevTools(h WindowHandle) error

	// Focus brings the window to the foreground.
	Focus(h WindowHandle) error

	// Run blocks running the surface's event loop until quit or ctx is done.
	Run(ctx context.Context) error
}
