package desktop

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/domain"
	"github.com/tridentframe/launcher/internal/lifecycle"
)

// HeadlessSurface runs the launcher without a GUI. It fires the same
// lifecycle signals a real window toolkit would.
type HeadlessSurface struct {
	bus    *lifecycle.Bus
	logger *zap.Logger

	mu      sync.Mutex
	windows map[domain.WindowHandle]domain.ContentSource
	quit    chan struct{}
	once    sync.Once
}

// NewHeadlessSurface creates a surface that emits to bus.
func NewHeadlessSurface(bus *lifecycle.Bus, logger *zap.Logger) *HeadlessSurface {
	return &HeadlessSurface{
		bus:     bus,
		logger:  logger,
		windows: make(map[domain.WindowHandle]domain.ContentSource),
		quit:    make(chan struct{}),
	}
}

func (s *HeadlessSurface) Create(spec domain.WindowSpec) (domain.WindowHandle, error) {
	h := domain.WindowHandle(uuid.NewString())
	s.mu.Lock()
	s.windows[h] = domain.ContentSource{}
	s.mu.Unlock()

	s.logger.Debug("headless window created",
		zap.String("window", string(h)),
		zap.Int("width", spec.Width),
		zap.Int("height", spec.Height))
	return h, nil
}

func (s *HeadlessSurface) Load(h domain.WindowHandle, src domain.ContentSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[h]; !ok {
		return fmt.Errorf("load %q: %w", h, ErrUnknownWindow)
	}
	s.windows[h] = src
	s.logger.Info("content loaded", zap.String("url", src.URL()))
	return nil
}

func (s *HeadlessSurface) OpenDevTools(domain.WindowHandle) error { return nil }

func (s *HeadlessSurface) Focus(domain.WindowHandle) error { return nil }

// Content returns what a window has loaded.
func (s *HeadlessSurface) Content(h domain.WindowHandle) (domain.ContentSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.windows[h]
	return src, ok
}

// Windows returns the open windows.
func (s *HeadlessSurface) Windows() []domain.WindowHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WindowHandle, 0, len(s.windows))
	for h := range s.windows {
		out = append(out, h)
	}
	return out
}

// Close simulates the user closing a window.
func (s *HeadlessSurface) Close(h domain.WindowHandle) {
	s.mu.Lock()
	delete(s.windows, h)
	remaining := len(s.windows)
	s.mu.Unlock()

	s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalWindowClosed, Window: h})
	if remaining == 0 {
		s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalAllClosed})
	}
}

// Activate simulates the OS re-activating the application.
func (s *HeadlessSurface) Activate() {
	s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalActivate})
}

// Run emits ready, blocks until Quit or ctx is done, then delivers
// will-quit and waits for its handlers.
func (s *HeadlessSurface) Run(ctx context.Context) error {
	s.bus.Emit(lifecycle.Event{Signal: lifecycle.SignalReady})

	select {
	case <-s.quit:
	case <-ctx.Done():
	}

	return s.bus.EmitAndWait(context.WithoutCancel(ctx), lifecycle.Event{Signal: lifecycle.SignalWillQuit})
}

// Quit makes Run return.
func (s *HeadlessSurface) Quit() {
	s.once.Do(func() { close(s.quit) })
}

var _ domain.Surface = (*HeadlessSurface)(nil)
