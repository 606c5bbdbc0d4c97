package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tridentframe/launcher/internal/config"
	"github.com/tridentframe/launcher/internal/desktop"
	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/infra"
	"github.com/tridentframe/launcher/internal/lifecycle"
)

type fakeHandle struct {
	pid  int
	exit chan int
	once sync.Once
}

func (h *fakeHandle) PID() int           { return h.pid }
func (h *fakeHandle) Wait() (int, error) { return <-h.exit, nil }

func (h *fakeHandle) exitWith(code int) {
	h.once.Do(func() { h.exit <- code })
}

// fakeProcesses is both the spawner and the process manager.
type fakeProcesses struct {
	mu         sync.Mutex
	spawnErr   error
	nextPID    int
	targets    []domain.BackendTarget
	handles    map[int]*fakeHandle
	terminated int
}

func newFakeProcesses() *fakeProcesses {
	return &fakeProcesses{nextPID: 4000, handles: make(map[int]*fakeHandle)}
}

func (f *fakeProcesses) Spawn(t domain.BackendTarget, _ domain.PortAssignment) (domain.ProcessHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, t)
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.nextPID++
	h := &fakeHandle{pid: f.nextPID, exit: make(chan int, 1)}
	f.handles[h.pid] = h
	return h, nil
}

func (f *fakeProcesses) handle(pid int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[pid]
}

func (f *fakeProcesses) spawned() []domain.BackendTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BackendTarget(nil), f.targets...)
}

func (f *fakeProcesses) terminations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

func (f *fakeProcesses) IsRunning(pid int) bool { return f.handle(pid) != nil }

func (f *fakeProcesses) Terminate(pid int) error {
	f.mu.Lock()
	f.terminated++
	f.mu.Unlock()
	if h := f.handle(pid); h != nil {
		h.exitWith(-1)
	}
	return nil
}

func (f *fakeProcesses) KillTree(pid int) error {
	if h := f.handle(pid); h != nil {
		h.exitWith(-9)
	}
	return nil
}

func (f *fakeProcesses) ListenerPID(int) (int, bool, error) { return 0, false, nil }

type readyProber struct{}

func (readyProber) Probe(context.Context, string) error { return nil }

// failingSurface refuses to create windows.
type failingSurface struct {
	*desktop.HeadlessSurface
}

func (failingSurface) Create(domain.WindowSpec) (domain.WindowHandle, error) {
	return "", errors.New("no display")
}

type harness struct {
	app     *App
	surface *desktop.HeadlessSurface
	procs   *fakeProcesses
	logs    *observer.ObservedLogs
	cancel  context.CancelFunc
	errc    chan error
}

func testConfig(t *testing.T, deployEnv string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.AppDir = "/opt/tridentframe"
	cfg.DeployEnv = deployEnv
	cfg.Backend.StopTimeout = config.Duration{Duration: 100 * time.Millisecond}
	cfg.Backend.KillGrace = config.Duration{Duration: 100 * time.Millisecond}
	cfg.Readiness.Interval = config.Duration{Duration: 10 * time.Millisecond}
	cfg.Readiness.Timeout = config.Duration{Duration: 2 * time.Second}
	return cfg
}

func start(t *testing.T, cfg config.Config, goos string, opts ...Option) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := &harness{procs: newFakeProcesses(), logs: logs, errc: make(chan error, 1)}
	factory := func(bus *lifecycle.Bus, _ domain.WindowSpec) domain.Surface {
		h.surface = desktop.NewHeadlessSurface(bus, logger)
		return h.surface
	}
	opts = append([]Option{
		WithGOOS(goos),
		WithSpawner(h.procs),
		WithProcessManager(h.procs),
		WithProber(readyProber{}),
	}, opts...)
	h.app = New(cfg, factory, logger, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.errc:
		case <-time.After(5 * time.Second):
		}
	})
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit")
		return nil
	}
}

func (h *harness) window(t *testing.T) domain.WindowHandle {
	t.Helper()
	var win domain.WindowHandle
	require.Eventually(t, func() bool {
		windows := h.surface.Windows()
		if len(windows) != 1 {
			return false
		}
		win = windows[0]
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return win
}

func TestRun_DevelopmentStartsBackendAndWindow(t *testing.T) {
	h := start(t, testConfig(t, "DEV"), "linux")

	require.Eventually(t, func() bool {
		return h.app.Supervisor().State() == domain.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	targets := h.procs.spawned()
	require.Len(t, targets, 1)
	assert.Equal(t, "python", targets[0].Executable)
	assert.Equal(t, []string{"/opt/tridentframe/main.py", "4242"}, targets[0].Args)

	win := h.window(t)
	require.Eventually(t, func() bool {
		src, ok := h.surface.Content(win)
		return ok && src.Location == "http://localhost:8080/"
	}, 5*time.Second, 10*time.Millisecond)

	h.cancel()
	require.NoError(t, h.wait(t))

	assert.Equal(t, domain.StateStopped, h.app.Supervisor().State())
	assert.Equal(t, 1, h.procs.terminations(), "stop runs exactly once")
	assert.NotZero(t, h.logs.FilterMessage("launcher starting").Len())
}

func TestRun_ClosingLastWindowQuitsOnLinux(t *testing.T) {
	h := start(t, testConfig(t, ""), "linux")

	win := h.window(t)
	require.Eventually(t, func() bool {
		return h.app.Supervisor().State() == domain.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	h.surface.Close(win)
	require.NoError(t, h.wait(t))
	assert.Equal(t, domain.StateStopped, h.app.Supervisor().State())

	targets := h.procs.spawned()
	require.Len(t, targets, 1)
	assert.Equal(t, "/opt/tridentframe/release/tridentframe_linux/main", targets[0].Executable)
	assert.Empty(t, targets[0].Args)
}

func TestRun_DarwinStaysResidentAndReactivates(t *testing.T) {
	cfg := testConfig(t, "DEV")
	h := start(t, cfg, "darwin")

	first := h.window(t)
	h.surface.Close(first)
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-h.errc:
		t.Fatalf("app quit on darwin: %v", err)
	default:
	}
	assert.Empty(t, h.surface.Windows())

	h.surface.Activate()
	second := h.window(t)
	assert.NotEqual(t, first, second)

	h.cancel()
	require.NoError(t, h.wait(t))
}

func TestRun_UnresolvedTargetKeepsWindow(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Readiness.Timeout = config.Duration{Duration: time.Minute}
	h := start(t, cfg, "freebsd")

	win := h.window(t)
	require.Eventually(t, func() bool {
		return h.logs.FilterMessage("no backend packaged for this platform").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, h.procs.spawned())
	assert.Equal(t, domain.StateNotStarted, h.app.Supervisor().State())

	// No backend is coming, so the content loads without the readiness wait.
	require.Eventually(t, func() bool {
		_, ok := h.surface.Content(win)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	h.cancel()
	require.NoError(t, h.wait(t))
}

func TestRun_LaunchFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t, "DEV")
	cfg.Readiness.Timeout = config.Duration{Duration: time.Minute}
	core, logs := observer.New(zapcore.DebugLevel)
	procs := newFakeProcesses()
	procs.spawnErr = errors.New("exec: \"python\": executable file not found in $PATH")

	var surface *desktop.HeadlessSurface
	a := New(cfg, func(bus *lifecycle.Bus, _ domain.WindowSpec) domain.Surface {
		surface = desktop.NewHeadlessSurface(bus, zap.NewNop())
		return surface
	}, zap.New(core), WithGOOS("linux"), WithSpawner(procs), WithProcessManager(procs))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("backend launch failed, continuing without it").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.StateStopped, a.Supervisor().State())
	require.Len(t, surface.Windows(), 1)
	require.Eventually(t, func() bool {
		src, ok := surface.Content(surface.Windows()[0])
		return ok && src.URL() == cfg.Window.DevURL
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit")
	}
}

func TestRun_UnexpectedExitIsReported(t *testing.T) {
	h := start(t, testConfig(t, "DEV"), "linux")

	require.Eventually(t, func() bool {
		return h.app.Supervisor().State() == domain.StateRunning
	}, 5*time.Second, 10*time.Millisecond)
	proc, ok := h.app.Supervisor().Current()
	require.True(t, ok)

	h.procs.handle(proc.PID).exitWith(3)

	require.Eventually(t, func() bool {
		return h.logs.FilterMessage("backend is gone; the window stays open without it").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.StateStopped, h.app.Supervisor().State())
	assert.Len(t, h.procs.spawned(), 1, "no restart")
	assert.Len(t, h.surface.Windows(), 1)

	h.cancel()
	require.NoError(t, h.wait(t))
	assert.Zero(t, h.procs.terminations())
}

func TestRun_WindowCreationFailureIsFatal(t *testing.T) {
	cfg := testConfig(t, "DEV")
	procs := newFakeProcesses()
	a := New(cfg, func(bus *lifecycle.Bus, _ domain.WindowSpec) domain.Surface {
		return failingSurface{desktop.NewHeadlessSurface(bus, zap.NewNop())}
	}, zap.NewNop(), WithGOOS("linux"), WithSpawner(procs), WithProcessManager(procs), WithProber(readyProber{}))

	errc := make(chan error, 1)
	go func() { errc <- a.Run(context.Background()) }()

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrWindowCreate))
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit")
	}
	assert.NotEqual(t, domain.StateRunning, a.Supervisor().State())
}

func TestRun_ServesMetrics(t *testing.T) {
	port, err := infra.FreePortAllocator{}.Allocate()
	require.NoError(t, err)

	cfg := testConfig(t, "DEV")
	cfg.Metrics.Addr = port.Addr()
	h := start(t, cfg, "linux")

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", port.Addr()))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	h.cancel()
	require.NoError(t, h.wait(t))
}

func TestLayoutAndWindowConfig(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Backend.PassPortInProduction = true

	layout := LayoutFor(cfg)
	assert.Equal(t, "/opt/tridentframe", layout.AppDir)
	assert.True(t, layout.PassPortInProduction)

	win := WindowConfigFor(cfg)
	assert.Equal(t, "/opt/tridentframe/imgs/TridentFrame_Icon_200px.png", win.IconPath)
	assert.Equal(t, "/opt/tridentframe/release/html/index.html", win.ProdContent)
	assert.Equal(t, 2*time.Second, win.ReadyTimeout)
}
