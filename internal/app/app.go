// Package app wires the lifecycle loop, the backend supervisor, the window
// host and a rendering surface into one running launcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tridentframe/launcher/internal/config"
	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/infra"
	"github.com/tridentframe/launcher/internal/lifecycle"
	"github.com/tridentframe/launcher/internal/metrics"
	"github.com/tridentframe/launcher/internal/readiness"
	"github.com/tridentframe/launcher/internal/target"
	"github.com/tridentframe/launcher/internal/usecase"
	"github.com/tridentframe/launcher/internal/window"
)

// SurfaceFactory builds the rendering surface once the bus and the window
// description are known.
type SurfaceFactory func(bus *lifecycle.Bus, spec domain.WindowSpec) domain.Surface

// App is one launcher run.
type App struct {
	cfg        config.Config
	host       infra.HostInfo
	bus        *lifecycle.Bus
	surface    domain.Surface
	supervisor *usecase.Supervisor
	window     *window.Host
	metrics    *metrics.Prometheus
	logger     *zap.Logger

	fatalMu sync.Mutex
	fatal   error
}

type options struct {
	goos           string
	spawner        domain.Spawner
	processManager domain.ProcessManager
	ports          domain.PortAllocator
	prober         domain.ReadinessProber
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithGOOS pretends to run on goos for the residency policy.
func WithGOOS(goos string) Option {
	return func(o *options) { o.goos = goos }
}

func WithSpawner(s domain.Spawner) Option {
	return func(o *options) { o.spawner = s }
}

func WithProcessManager(pm domain.ProcessManager) Option {
	return func(o *options) { o.processManager = pm }
}

func WithPortAllocator(p domain.PortAllocator) Option {
	return func(o *options) { o.ports = p }
}

func WithProber(p domain.ReadinessProber) Option {
	return func(o *options) { o.prober = p }
}

// New assembles the launcher from configuration.
func New(cfg config.Config, newSurface SurfaceFactory, logger *zap.Logger, opts ...Option) *App {
	o := options{
		goos:           runtime.GOOS,
		spawner:        infra.NewSpawner(cfg.Backend.PortEnv, logger.Named("backend")),
		processManager: infra.NewProcessManager(),
		ports:          infra.FixedPortAllocator{Port: cfg.Backend.Port},
		prober:         proberFor(cfg),
	}
	for _, opt := range opts {
		opt(&o)
	}

	host := infra.DetectHost(cfg.Mode(), cfg.AppDir)
	host.GOOS = o.goos
	host.Platform = domain.PlatformFromGOOS(o.goos)

	a := &App{
		cfg:     cfg,
		host:    host,
		bus:     lifecycle.NewBus(logger.Named("lifecycle")),
		metrics: metrics.NewPrometheus(""),
		logger:  logger,
	}

	supCfg := usecase.DefaultSupervisorConfig(host.Mode, host.Platform)
	supCfg.StopTimeout = cfg.Backend.StopTimeout.Duration
	supCfg.KillGrace = cfg.Backend.KillGrace.Duration
	supCfg.ReadinessInterval = cfg.Readiness.Interval.Duration
	supCfg.ReadinessTimeout = cfg.Readiness.Timeout.Duration

	a.supervisor = usecase.NewSupervisor(
		supCfg,
		o.ports,
		target.NewMatrix(LayoutFor(cfg)),
		o.spawner,
		o.processManager,
		logger.Named("supervisor"),
		usecase.WithMetrics(a.metrics),
		usecase.WithProber(o.prober),
		usecase.WithExitObserver(a.onBackendExit),
	)

	winCfg := WindowConfigFor(cfg)
	a.surface = newSurface(a.bus, window.SpecFor(winCfg, host.Mode))
	a.window = window.NewHost(
		winCfg,
		host.Mode,
		host.GOOS,
		a.surface,
		window.NewResidencyPolicy(cfg.Window.StayResidentPlatforms...),
		a.supervisor.Ready,
		a.bus,
		logger.Named("window"),
	)

	a.registerHandlers()
	return a
}

// LayoutFor maps the backend section onto the target layout.
func LayoutFor(cfg config.Config) target.Layout {
	return target.Layout{
		AppDir:               cfg.AppDir,
		Interpreter:          cfg.Backend.Interpreter,
		DevScript:            cfg.Backend.Script,
		WindowsExecutable:    cfg.Backend.WindowsExecutable,
		LinuxExecutable:      cfg.Backend.LinuxExecutable,
		PassPortInProduction: cfg.Backend.PassPortInProduction,
	}
}

// WindowConfigFor maps the window section onto the host config with paths
// resolved against the install directory.
func WindowConfigFor(cfg config.Config) window.Config {
	return window.Config{
		Title:        cfg.Window.Title,
		Width:        cfg.Window.Width,
		Height:       cfg.Window.Height,
		IconPath:     cfg.Path(cfg.Window.Icon),
		DevURL:       cfg.Window.DevURL,
		ProdContent:  cfg.Path(cfg.Window.ProdContent),
		DevTools:     cfg.Window.DevTools,
		ReadyTimeout: cfg.Readiness.Timeout.Duration,
	}
}

func proberFor(cfg config.Config) domain.ReadinessProber {
	if cfg.Readiness.HealthPath != "" {
		return readiness.NewHTTPProber(cfg.Readiness.HealthPath, time.Second)
	}
	return readiness.TCPProber{DialTimeout: 500 * time.Millisecond}
}

func (a *App) registerHandlers() {
	a.bus.On(lifecycle.SignalReady, "create-window", func(ctx context.Context, _ lifecycle.Event) {
		if err := a.window.CreateWindow(ctx); err != nil {
			a.fail(err)
		}
	})
	a.bus.On(lifecycle.SignalReady, "start-backend", func(ctx context.Context, _ lifecycle.Event) {
		a.startBackend(ctx)
	})
	a.bus.On(lifecycle.SignalWindowClosed, "forget-window", func(_ context.Context, ev lifecycle.Event) {
		a.window.OnClosed(ev.Window)
	})
	a.bus.On(lifecycle.SignalAllClosed, "quit-unless-resident", func(context.Context, lifecycle.Event) {
		a.window.OnAllClosed()
	})
	a.bus.On(lifecycle.SignalActivate, "recreate-window", func(ctx context.Context, _ lifecycle.Event) {
		if err := a.window.OnActivate(ctx); err != nil {
			a.fail(err)
		}
	})
	a.bus.On(lifecycle.SignalWillQuit, "stop-backend", func(context.Context, lifecycle.Event) {
		a.stopBackend()
	})
	a.bus.On(lifecycle.SignalBackendExited, "report-exit", func(_ context.Context, ev lifecycle.Event) {
		if ev.Exit == nil {
			return
		}
		a.window.BackendUnavailable()
		a.logger.Error("backend is gone; the window stays open without it",
			zap.String("run_id", ev.Exit.RunID),
			zap.Int("exit_code", ev.Exit.ExitCode),
			zap.Error(ev.Exit.Err))
	})
}

func (a *App) startBackend(ctx context.Context) {
	_, err := a.supervisor.Launch(ctx)
	if err != nil {
		a.window.BackendUnavailable()
	}
	switch domain.CodeOf(err) {
	case "":
	case domain.CodeUnresolvedTarget:
		a.logger.Error("no backend packaged for this platform",
			zap.String("platform", string(a.host.Platform)),
			zap.String("mode", string(a.host.Mode)),
			zap.Error(err))
	default:
		a.logger.Error("backend launch failed, continuing without it", zap.Error(err))
	}
}

// stopBackend is idempotent and bounded by the supervisor's own timeouts.
func (a *App) stopBackend() {
	ctx, cancel := context.WithTimeout(context.Background(), a.stopBudget())
	defer cancel()
	if err := a.supervisor.Stop(ctx); err != nil {
		a.logger.Error("backend stop failed", zap.Error(err))
	}
}

func (a *App) stopBudget() time.Duration {
	return a.cfg.Backend.StopTimeout.Duration + a.cfg.Backend.KillGrace.Duration + time.Second
}

func (a *App) onBackendExit(exit domain.BackendExit) {
	a.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalBackendExited, Exit: &exit})
}

// fail records the first fatal error and asks the surface to quit.
func (a *App) fail(err error) {
	a.fatalMu.Lock()
	first := a.fatal == nil
	if first {
		a.fatal = err
	}
	a.fatalMu.Unlock()

	if first {
		a.logger.Error("fatal launcher error", zap.Error(err))
		a.surface.Quit()
	}
}

func (a *App) fatalErr() error {
	a.fatalMu.Lock()
	defer a.fatalMu.Unlock()
	return a.fatal
}

// Supervisor exposes the backend supervisor.
func (a *App) Supervisor() *usecase.Supervisor { return a.supervisor }

// Metrics exposes the collector registry.
func (a *App) Metrics() *metrics.Prometheus { return a.metrics }

// Host describes where the launcher runs.
func (a *App) Host() infra.HostInfo { return a.host }

// Run blocks until the surface exits. The backend is always stopped before
// Run returns.
func (a *App) Run(ctx context.Context) error {
	exe, _ := os.Executable()
	a.logger.Info("launcher starting",
		zap.String("DIRNAME", a.host.AppDir),
		zap.String("APP PATH", exe),
		zap.String("host", a.host.String()))

	defer a.stopBackend()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return a.bus.Run(loopCtx)
	})

	if addr := a.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			a.logger.Info("serving metrics", zap.String("addr", addr))
			if err := a.metrics.Serve(gctx, addr); err != nil {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer stopLoop()
		defer cancelRun()

		runErr := a.surface.Run(gctx)

		// Surfaces deliver will-quit themselves; this covers error paths.
		// A second will-quit only waits for the first.
		wctx, cancel := context.WithTimeout(context.Background(), a.stopBudget())
		defer cancel()
		if err := a.bus.EmitAndWait(wctx, lifecycle.Event{Signal: lifecycle.SignalWillQuit}); err != nil && !errors.Is(err, lifecycle.ErrStopped) {
			a.logger.Warn("will-quit handlers did not finish", zap.Error(err))
		}

		if runErr != nil {
			return fmt.Errorf("window runtime: %w", runErr)
		}
		return a.fatalErr()
	})

	err := g.Wait()
	a.logger.Info("launcher exiting", zap.Error(err))
	return err
}
