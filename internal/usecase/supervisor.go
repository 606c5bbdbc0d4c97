// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/metrics"
	"github.com/tridentframe/launcher/internal/readiness"
)

// SupervisorConfig holds the supervisor's host facts and timeouts.
type SupervisorConfig struct {
	Mode     domain.DeploymentMode
	Platform domain.Platform

	StopTimeout       time.Duration // wait after the terminate signal before force-killing
	KillGrace         time.Duration // wait after force-kill for the exit to be observed
	ReadinessInterval time.Duration
	ReadinessTimeout  time.Duration
}

// DefaultSupervisorConfig returns defaults for the given host.
func DefaultSupervisorConfig(mode domain.DeploymentMode, platform domain.Platform) SupervisorConfig {
	return SupervisorConfig{
		Mode:              mode,
		Platform:          platform,
		StopTimeout:       5 * time.Second,
		KillGrace:         2 * time.Second,
		ReadinessInterval: 100 * time.Millisecond,
		ReadinessTimeout:  10 * time.Second,
	}
}

// ExitObserver is told when the backend exits without being asked to.
type ExitObserver func(domain.BackendExit)

var allowedTransitions = map[domain.SupervisorState][]domain.SupervisorState{
	domain.StateNotStarted: {domain.StateStarting},
	domain.StateStarting:   {domain.StateRunning, domain.StateStopped},
	domain.StateRunning:    {domain.StateStopped},
	domain.StateStopped:    {domain.StateStarting},
}

// Supervisor owns the single backend process for the application's lifetime.
type Supervisor struct {
	config         SupervisorConfig
	ports          domain.PortAllocator
	targets        domain.TargetResolver
	spawner        domain.Spawner
	processManager domain.ProcessManager
	prober         domain.ReadinessProber
	gate           *readiness.Gate
	metrics        metrics.Collector
	onExit         ExitObserver
	logger         *zap.Logger

	stopMu sync.Mutex // serialises Stop calls

	mu    sync.Mutex
	state domain.SupervisorState
	port  domain.PortAssignment
	run   *backendRun
}

// backendRun is one launched process. done closes after the exit is recorded.
type backendRun struct {
	proc     domain.SupervisedProcess
	handle   domain.ProcessHandle
	done     chan struct{}
	cancel   context.CancelFunc
	stopping bool
}

// Option configures optional supervisor collaborators.
type Option func(*Supervisor)

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = c }
}

// WithProber enables background readiness probing after each launch.
func WithProber(p domain.ReadinessProber) Option {
	return func(s *Supervisor) { s.prober = p }
}

// WithExitObserver registers the unexpected-exit callback.
func WithExitObserver(fn ExitObserver) Option {
	return func(s *Supervisor) { s.onExit = fn }
}

// NewSupervisor creates a supervisor in the NotStarted state.
func NewSupervisor(
	config SupervisorConfig,
	ports domain.PortAllocator,
	targets domain.TargetResolver,
	spawner domain.Spawner,
	pm domain.ProcessManager,
	logger *zap.Logger,
	opts ...Option,
) *Supervisor {
	s := &Supervisor{
		config:         config,
		ports:          ports,
		targets:        targets,
		spawner:        spawner,
		processManager: pm,
		gate:           readiness.NewGate(),
		metrics:        metrics.NewNoop(),
		logger:         logger,
		state:          domain.StateNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolvePort returns the port for the current run. The value is stable
// until Stop clears it.
func (s *Supervisor) ResolvePort() (domain.PortAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.port.IsZero() {
		return s.port, nil
	}
	p, err := s.ports.Allocate()
	if err != nil {
		return domain.PortAssignment{}, err
	}
	s.port = p
	return p, nil
}

// ResolveTarget maps mode and platform to a launch target. It has no side effects.
func (s *Supervisor) ResolveTarget(mode domain.DeploymentMode, platform domain.Platform, port domain.PortAssignment) (domain.BackendTarget, error) {
	return s.targets.Resolve(mode, platform, port)
}

// Launch resolves the port and target for the configured host and starts
// the backend.
func (s *Supervisor) Launch(ctx context.Context) (domain.SupervisedProcess, error) {
	port, err := s.ResolvePort()
	if err != nil {
		return domain.SupervisedProcess{}, err
	}

	target, err := s.ResolveTarget(s.config.Mode, s.config.Platform, port)
	if err != nil {
		s.metrics.LaunchAttempt("", domain.CodeOf(err))
		return domain.SupervisedProcess{}, err
	}
	return s.Start(ctx, target, port)
}

// Start launches target. An unresolved target is refused without touching
// the state machine. Launch failures leave the supervisor Stopped.
func (s *Supervisor) Start(ctx context.Context, target domain.BackendTarget, port domain.PortAssignment) (domain.SupervisedProcess, error) {
	if target.IsZero() {
		s.metrics.LaunchAttempt("", domain.CodeUnresolvedTarget)
		return domain.SupervisedProcess{}, domain.NewError(domain.CodeUnresolvedTarget, "refusing to launch an unresolved target").
			WithContext("mode", s.config.Mode).
			WithContext("platform", s.config.Platform)
	}
	if port.IsZero() {
		return domain.SupervisedProcess{}, domain.NewError(domain.CodeInvalidPort, "no port assigned")
	}
	if err := ctx.Err(); err != nil {
		return domain.SupervisedProcess{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return s.run.proc, domain.NewError(domain.CodeAlreadyRunning, "a backend is already running").
			WithContext("pid", s.run.proc.PID)
	}
	if err := s.transition(domain.StateStarting); err != nil {
		return domain.SupervisedProcess{}, err
	}
	s.gate.Reset()

	handle, err := s.spawner.Spawn(target, port)
	if err != nil {
		_ = s.transition(domain.StateStopped)
		s.metrics.LaunchAttempt(target.Rule, domain.CodeLaunchFailed)
		return domain.SupervisedProcess{}, domain.NewError(domain.CodeLaunchFailed, "could not start backend").
			WithContext("executable", target.Executable).
			WithCause(err)
	}

	proc := domain.SupervisedProcess{
		RunID:     uuid.NewString(),
		PID:       handle.PID(),
		Target:    target,
		Port:      port,
		StartedAt: time.Now(),
	}
	runCtx, cancel := context.WithCancel(context.Background())
	run := &backendRun{
		proc:   proc,
		handle: handle,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	s.run = run
	s.port = port
	_ = s.transition(domain.StateRunning)
	s.metrics.LaunchAttempt(target.Rule, "")

	s.logger.Info("child process created",
		zap.String("run_id", proc.RunID),
		zap.Int("pid", proc.PID),
		zap.String("command", target.CommandLine()),
		zap.Int("port", port.Port))

	go s.watchExit(run)
	if s.prober != nil {
		go s.watchReadiness(runCtx, run)
	}

	return proc, nil
}

// Stop terminates the backend if there is one: polite signal, bounded wait,
// then force-kill of the process tree. Calling it with no backend is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	run := s.run
	if run == nil {
		s.port = domain.PortAssignment{}
		s.mu.Unlock()
		return nil
	}
	run.stopping = true
	s.mu.Unlock()

	start := time.Now()
	pid := run.proc.PID
	s.logger.Info("stopping backend", zap.String("run_id", run.proc.RunID), zap.Int("pid", pid))

	forced, stopErr := s.terminate(ctx, run)
	run.cancel()

	s.mu.Lock()
	if s.run == run {
		s.run = nil
		s.gate.Reset()
	}
	s.port = domain.PortAssignment{}
	if s.state != domain.StateStopped {
		_ = s.transition(domain.StateStopped)
	}
	s.mu.Unlock()

	s.metrics.StopDuration(time.Since(start), forced)
	s.logger.Info("backend stopped",
		zap.Int("pid", pid),
		zap.Bool("forced", forced),
		zap.Duration("took", time.Since(start)))

	return stopErr
}

// terminate returns whether a force-kill was needed.
func (s *Supervisor) terminate(ctx context.Context, run *backendRun) (bool, error) {
	pid := run.proc.PID

	select {
	case <-run.done:
		return false, nil
	default:
	}

	forced := false
	if err := s.processManager.Terminate(pid); err != nil {
		if !errors.Is(err, domain.ErrTerminateUnsupported) {
			s.logger.Debug("terminate signal failed", zap.Int("pid", pid), zap.Error(err))
		}
		forced = true
	}

	if !forced {
		timer := time.NewTimer(s.config.StopTimeout)
		defer timer.Stop()

		select {
		case <-run.done:
			return false, nil
		case <-timer.C:
			s.logger.Warn("backend ignored terminate signal, killing",
				zap.Int("pid", pid),
				zap.Duration("timeout", s.config.StopTimeout))
		case <-ctx.Done():
			s.logger.Warn("stop cancelled, killing backend", zap.Int("pid", pid))
		}
	}

	var stopErr error
	if err := s.processManager.KillTree(pid); err != nil {
		stopErr = domain.NewError(domain.CodeTerminationFailed, "could not kill backend").
			WithContext("pid", pid).
			WithCause(err)
	}

	grace := time.NewTimer(s.config.KillGrace)
	defer grace.Stop()
	select {
	case <-run.done:
	case <-grace.C:
		s.logger.Warn("backend exit not observed after kill", zap.Int("pid", pid))
	}
	return true, stopErr
}

// watchExit waits for the process and records how it ended.
func (s *Supervisor) watchExit(run *backendRun) {
	code, waitErr := run.handle.Wait()
	run.cancel()

	s.mu.Lock()
	exit := domain.BackendExit{
		RunID:    run.proc.RunID,
		PID:      run.proc.PID,
		ExitCode: code,
		Err:      waitErr,
		Expected: run.stopping,
		ExitedAt: time.Now(),
	}
	current := s.run == run
	if current && !run.stopping {
		s.run = nil
		s.port = domain.PortAssignment{}
		s.gate.Reset()
		_ = s.transition(domain.StateStopped)
		exit.Err = domain.NewError(domain.CodeUnexpectedExit, "backend exited unexpectedly").
			WithContext("pid", run.proc.PID).
			WithContext("exit_code", code).
			WithCause(waitErr)
	}
	s.mu.Unlock()
	close(run.done)

	s.metrics.BackendExit(exit.Expected, code)

	if exit.Expected || !current {
		s.logger.Debug("backend exited", zap.Int("pid", exit.PID), zap.Int("exit_code", code))
		return
	}

	s.logger.Warn("backend exited unexpectedly",
		zap.String("run_id", exit.RunID),
		zap.Int("pid", exit.PID),
		zap.Int("exit_code", code),
		zap.Error(exit.Err),
		zap.Duration("uptime", exit.ExitedAt.Sub(run.proc.StartedAt)))

	if s.onExit != nil {
		s.onExit(exit)
	}
}

// watchReadiness opens the gate once the backend accepts connections.
func (s *Supervisor) watchReadiness(ctx context.Context, run *backendRun) {
	start := time.Now()
	addr := run.proc.Port.Addr()

	err := readiness.WaitUntil(ctx, s.prober, addr, s.config.ReadinessInterval, s.config.ReadinessTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.metrics.ReadinessWait(time.Since(start), false)
		s.logger.Warn("backend not accepting connections", zap.String("addr", addr), zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.run == run {
		s.gate.Open()
	}
	s.mu.Unlock()

	s.metrics.ReadinessWait(time.Since(start), true)
	s.logger.Info("backend ready", zap.String("addr", addr), zap.Duration("took", time.Since(start)))
}

// transition moves the state machine. Caller must hold s.mu.
func (s *Supervisor) transition(to domain.SupervisorState) error {
	from := s.state
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			s.state = to
			s.metrics.StateTransition(from, to)
			s.logger.Debug("backend state changed",
				zap.String("from", string(from)),
				zap.String("to", string(to)))
			return nil
		}
	}

	err := domain.NewError(domain.CodeInvalidTransition, "illegal supervisor transition").
		WithContext("from", from).
		WithContext("to", to)
	s.logger.Error("rejected state transition", zap.Error(err))
	return err
}

// State returns the current state.
func (s *Supervisor) State() domain.SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the live backend, if any.
func (s *Supervisor) Current() (domain.SupervisedProcess, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return domain.SupervisedProcess{}, false
	}
	return s.run.proc, true
}

// Ready returns a channel closed once the current backend accepts
// connections. It never closes when no prober is configured.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.gate.Done()
}

// Ensure Supervisor implements domain.BackendSupervisor.
var _ domain.BackendSupervisor = (*Supervisor)(nil)
