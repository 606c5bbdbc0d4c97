// Package window hosts the single application window. Every Host method
// runs on the lifecycle loop; the Host has no locking of its own.
package window

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/domain"
)

// Config describes the window and its content.
type Config struct {
	Title       string
	Width       int
	Height      int
	IconPath    string // absolute
	DevURL      string
	ProdContent string // absolute path to the packaged index.html

	// DevTools overrides the default of "open in development only".
	DevTools *bool

	// ReadyTimeout bounds how long content loading waits for the backend.
	// Zero loads immediately.
	ReadyTimeout time.Duration
}

// Dispatcher runs a closure on the lifecycle loop.
type Dispatcher interface {
	Dispatch(fn func(ctx context.Context))
}

// ReadySource returns a channel closed once the backend accepts connections.
type ReadySource func() <-chan struct{}

// Host creates and tracks the application window.
type Host struct {
	config    Config
	mode      domain.DeploymentMode
	goos      string
	surface   domain.Surface
	residency ResidencyPolicy
	ready     ReadySource
	loop      Dispatcher
	logger    *zap.Logger

	handle      domain.WindowHandle
	backendDown bool
	release     chan struct{} // closed to stop a pending load waiting on the backend
}

// NewHost creates a host with no window.
func NewHost(
	config Config,
	mode domain.DeploymentMode,
	goos string,
	surface domain.Surface,
	residency ResidencyPolicy,
	ready ReadySource,
	loop Dispatcher,
	logger *zap.Logger,
) *Host {
	return &Host{
		config:    config,
		mode:      mode,
		goos:      goos,
		surface:   surface,
		residency: residency,
		ready:     ready,
		loop:      loop,
		logger:    logger,
	}
}

// Spec returns the fixed window description.
func (h *Host) Spec() domain.WindowSpec {
	return SpecFor(h.config, h.mode)
}

// SpecFor is the window description for config in mode. Surfaces that need
// it before a Host exists use this directly.
func SpecFor(config Config, mode domain.DeploymentMode) domain.WindowSpec {
	return domain.WindowSpec{
		Title:     config.Title,
		Width:     config.Width,
		Height:    config.Height,
		Resizable: false,
		Centered:  true,
		Frameless: true,
		Menu:      false,
		DarkTheme: true,
		IconPath:  config.IconPath,
		DevTools:  devToolsEnabled(config, mode),
	}
}

// Content returns what the window shows in the current mode.
func (h *Host) Content() domain.ContentSource {
	if h.mode == domain.ModeDevelopment {
		return domain.ContentSource{Kind: domain.ContentURL, Location: h.config.DevURL}
	}
	return domain.ContentSource{Kind: domain.ContentFile, Location: h.config.ProdContent}
}

func devToolsEnabled(config Config, mode domain.DeploymentMode) bool {
	if config.DevTools != nil {
		return *config.DevTools
	}
	return mode == domain.ModeDevelopment
}

// Handle returns the current window, or "" when there is none.
func (h *Host) Handle() domain.WindowHandle {
	return h.handle
}

// CreateWindow opens the window if none exists. A surface failure is fatal
// to the run and returned as WINDOW_CREATE_FAILED.
func (h *Host) CreateWindow(ctx context.Context) error {
	if h.handle != "" {
		return nil
	}

	spec := h.Spec()
	handle, err := h.surface.Create(spec)
	if err != nil {
		return domain.NewError(domain.CodeWindowCreate, "could not create window").WithCause(err)
	}
	h.handle = handle

	src := h.Content()
	h.logger.Info("window created",
		zap.String("version", string(h.mode)),
		zap.String("content", src.URL()),
		zap.Bool("devtools", spec.DevTools))

	if spec.DevTools {
		if err := h.surface.OpenDevTools(handle); err != nil {
			h.logger.Warn("could not open devtools", zap.Error(err))
		}
	}
	if err := h.surface.Focus(handle); err != nil {
		h.logger.Debug("could not focus window", zap.Error(err))
	}

	h.scheduleLoad(ctx, handle, src)
	return nil
}

// scheduleLoad waits (bounded) for the backend off the loop, then loads the
// content back on the loop if the window still exists.
func (h *Host) scheduleLoad(ctx context.Context, handle domain.WindowHandle, src domain.ContentSource) {
	var release chan struct{}
	load := func(context.Context) {
		if release != nil && h.release == release {
			h.release = nil
		}
		if h.handle != handle {
			h.logger.Debug("window closed before content load", zap.String("window", string(handle)))
			return
		}
		if err := h.surface.Load(handle, src); err != nil {
			h.logger.Error("could not load window content", zap.String("content", src.URL()), zap.Error(err))
		}
	}

	if h.ready == nil || h.config.ReadyTimeout <= 0 || h.backendDown {
		load(ctx)
		return
	}

	ready := h.ready()
	release = make(chan struct{})
	h.release = release
	go func() {
		timer := time.NewTimer(h.config.ReadyTimeout)
		defer timer.Stop()

		select {
		case <-ready:
		case <-release:
			h.logger.Info("no backend to wait for, loading content")
		case <-timer.C:
			h.logger.Warn("backend not ready, loading content anyway",
				zap.Duration("waited", h.config.ReadyTimeout))
		case <-ctx.Done():
			return
		}
		h.loop.Dispatch(load)
	}()
}

// BackendUnavailable records that no backend will become ready. A load
// waiting on readiness proceeds at once, and later loads do not wait.
func (h *Host) BackendUnavailable() {
	h.backendDown = true
	if h.release != nil {
		close(h.release)
		h.release = nil
	}
}

// OnClosed forgets the window when it is the current one.
func (h *Host) OnClosed(handle domain.WindowHandle) {
	if handle == "" || handle == h.handle {
		h.handle = ""
	}
}

// OnActivate recreates the window if it was closed.
func (h *Host) OnActivate(ctx context.Context) error {
	if h.handle != "" {
		if err := h.surface.Focus(h.handle); err != nil {
			h.logger.Debug("could not focus window", zap.Error(err))
		}
		return nil
	}
	return h.CreateWindow(ctx)
}

// OnAllClosed quits unless this platform keeps apps resident.
func (h *Host) OnAllClosed() {
	if h.residency.StaysResident(h.goos) {
		h.logger.Info("all windows closed, staying resident", zap.String("os", h.goos))
		return
	}
	h.logger.Info("all windows closed, quitting")
	h.surface.Quit()
}
