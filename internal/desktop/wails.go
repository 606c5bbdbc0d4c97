package desktop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/lifecycle"
)

var (
	errRuntimeNotStarted = errors.New("window runtime not started")
	errDevToolsStartup   = errors.New("devtools can only be opened at startup")
)

// ErrUnknownWindow is returned for a handle the surface does not hold,
// usually a window that was already closed.
var ErrUnknownWindow = errors.New("unknown window")

// WailsConfig configures the webview window.
type WailsConfig struct {
	Spec domain.WindowSpec

	// UniqueID enables the single-instance lock. A second launch
	// re-activates this one.
	UniqueID string

	// ShutdownTimeout bounds how long the runtime waits for will-quit
	// handlers before tearing the window down.
	ShutdownTimeout time.Duration
}

// windowRuntime is the slice of the wails runtime the surface drives.
type windowRuntime interface {
	Show(ctx context.Context)
	Hide(ctx context.Context)
	Center(ctx context.Context)
	Unminimise(ctx context.Context)
	Reload(ctx context.Context)
	Quit(ctx context.Context)
}

type wailsRuntime struct{}

func (wailsRuntime) Show(ctx context.Context)       { runtime.WindowShow(ctx) }
func (wailsRuntime) Hide(ctx context.Context)       { runtime.WindowHide(ctx) }
func (wailsRuntime) Center(ctx context.Context)     { runtime.WindowCenter(ctx) }
func (wailsRuntime) Unminimise(ctx context.Context) { runtime.WindowUnminimise(ctx) }
func (wailsRuntime) Reload(ctx context.Context)     { runtime.WindowReloadApp(ctx) }
func (wailsRuntime) Quit(ctx context.Context)       { runtime.Quit(ctx) }

// WailsSurface is a single webview window. It starts hidden; Create shows
// it and a user close hides it again so the window can be re-activated.
type WailsSurface struct {
	config  WailsConfig
	bus     *lifecycle.Bus
	content *ContentHandler
	rt      windowRuntime
	icon    []byte
	logger  *zap.Logger

	mu       sync.Mutex
	wctx     context.Context
	handle   domain.WindowHandle
	quitting atomic.Bool
}

// NewWailsSurface creates the surface. A missing icon is logged and skipped.
func NewWailsSurface(config WailsConfig, bus *lifecycle.Bus, logger *zap.Logger) *WailsSurface {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &WailsSurface{
		config:  config,
		bus:     bus,
		content: NewContentHandler(),
		rt:      wailsRuntime{},
		logger:  logger,
	}
	if config.Spec.IconPath != "" {
		icon, err := os.ReadFile(config.Spec.IconPath)
		if err != nil {
			logger.Warn("window icon unavailable", zap.String("path", config.Spec.IconPath), zap.Error(err))
		} else {
			s.icon = icon
		}
	}
	return s
}

// Options builds the wails application options for the window spec.
func (s *WailsSurface) Options() *options.App {
	spec := s.config.Spec

	app := &options.App{
		Title:         spec.Title,
		Width:         spec.Width,
		Height:        spec.Height,
		DisableResize: !spec.Resizable,
		Frameless:     spec.Frameless,
		StartHidden:   true,
		AssetServer: &assetserver.Options{
			Handler: s.content,
		},
		BackgroundColour: backgroundFor(spec),
		Logger:           newZapLogger(s.logger),
		LogLevel:         logger.INFO,
		OnStartup:        s.onStartup,
		OnDomReady:       s.onDomReady,
		OnBeforeClose:    s.onBeforeClose,
		OnShutdown:       s.onShutdown,
		Debug: options.Debug{
			OpenInspectorOnStartup: spec.DevTools,
		},
		Linux: &linux.Options{
			Icon:        s.icon,
			ProgramName: spec.Title,
		},
		Windows: &windows.Options{
			Theme: windows.SystemDefault,
		},
		Mac: &mac.Options{},
	}

	if !spec.Resizable {
		app.MinWidth, app.MaxWidth = spec.Width, spec.Width
		app.MinHeight, app.MaxHeight = spec.Height, spec.Height
	}
	if spec.DarkTheme {
		app.Windows.Theme = windows.Dark
		app.Mac.Appearance = mac.NSAppearanceNameDarkAqua
	}
	if spec.Menu {
		app.Menu = menu.NewMenuFromItems(menu.AppMenu(), menu.EditMenu())
	}
	if s.config.UniqueID != "" {
		app.SingleInstanceLock = &options.SingleInstanceLock{
			UniqueId: s.config.UniqueID,
			OnSecondInstanceLaunch: func(options.SecondInstanceData) {
				s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalActivate})
			},
		}
	}
	return app
}

func backgroundFor(spec domain.WindowSpec) *options.RGBA {
	if spec.DarkTheme {
		return &options.RGBA{R: 30, G: 30, B: 30, A: 255}
	}
	return &options.RGBA{R: 255, G: 255, B: 255, A: 255}
}

// Run blocks on the webview event loop. Cancelling ctx quits the window.
func (s *WailsSurface) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.Quit()
		case <-done:
		}
	}()

	return wails.Run(s.Options())
}

func (s *WailsSurface) Quit() {
	s.quitting.Store(true)
	if wctx, err := s.runtimeContext(); err == nil {
		s.rt.Quit(wctx)
	}
}

func (s *WailsSurface) Create(spec domain.WindowSpec) (domain.WindowHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wctx == nil {
		return "", errRuntimeNotStarted
	}

	if spec.Centered {
		s.rt.Center(s.wctx)
	}
	s.rt.Show(s.wctx)
	s.handle = domain.WindowHandle(uuid.NewString())
	return s.handle, nil
}

func (s *WailsSurface) Load(h domain.WindowHandle, src domain.ContentSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wctx == nil {
		return errRuntimeNotStarted
	}
	if h != s.handle {
		return fmt.Errorf("load %q: %w", h, ErrUnknownWindow)
	}

	if err := s.content.Set(src); err != nil {
		return err
	}
	s.rt.Reload(s.wctx)
	return nil
}

// OpenDevTools succeeds only when the inspector was requested at startup;
// the webview cannot open it later.
func (s *WailsSurface) OpenDevTools(domain.WindowHandle) error {
	if s.config.Spec.DevTools {
		return nil
	}
	return errDevToolsStartup
}

func (s *WailsSurface) Focus(domain.WindowHandle) error {
	wctx, err := s.runtimeContext()
	if err != nil {
		return err
	}
	s.rt.Unminimise(wctx)
	s.rt.Show(wctx)
	return nil
}

func (s *WailsSurface) runtimeContext() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wctx == nil {
		return nil, errRuntimeNotStarted
	}
	return s.wctx, nil
}

func (s *WailsSurface) onStartup(ctx context.Context) {
	s.mu.Lock()
	s.wctx = ctx
	s.mu.Unlock()

	if s.quitting.Load() {
		s.rt.Quit(ctx)
		return
	}
	s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalReady})
}

func (s *WailsSurface) onDomReady(context.Context) {
	s.logger.Debug("webview dom ready")
}

// onBeforeClose hides the window instead of destroying it unless the app is
// quitting. There is only one window, so closing it also closes all.
func (s *WailsSurface) onBeforeClose(ctx context.Context) bool {
	if s.quitting.Load() {
		return false
	}

	s.mu.Lock()
	closed := s.handle
	s.handle = ""
	s.mu.Unlock()

	s.rt.Hide(ctx)
	s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalWindowClosed, Window: closed})
	s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalAllClosed})
	return true
}

func (s *WailsSurface) onShutdown(context.Context) {
	s.quitting.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.bus.EmitAndWait(ctx, lifecycle.Event{Signal: lifecycle.SignalWillQuit}); err != nil {
		s.logger.Warn("will-quit handlers did not finish", zap.Error(err))
	}
}

var _ domain.Surface = (*WailsSurface)(nil)
