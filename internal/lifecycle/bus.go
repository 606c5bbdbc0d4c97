// Package lifecycle runs the application's single control loop. Window and
// backend lifecycle handlers all execute on the loop goroutine, one at a time.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/domain"
)

// Signal names an application lifecycle event.
type Signal string

const (
	SignalReady         Signal = "ready"
	SignalWindowClosed  Signal = "window-closed"
	SignalAllClosed     Signal = "all-closed"
	SignalActivate      Signal = "activate"
	SignalWillQuit      Signal = "will-quit"
	SignalBackendExited Signal = "backend-exited"
)

// ErrStopped is returned when waiting on a loop that is no longer running.
var ErrStopped = errors.New("lifecycle loop stopped")

// Event is delivered to handlers.
type Event struct {
	Signal Signal
	Window domain.WindowHandle // window-closed
	Exit   *domain.BackendExit // backend-exited
}

// Handler reacts to an event. ctx is the loop's context.
type Handler func(ctx context.Context, ev Event)

type namedHandler struct {
	name string
	fn   Handler
}

type item struct {
	ev   *Event
	fn   func(ctx context.Context)
	done chan struct{}
}

// Bus queues events and closures and runs them on one goroutine.
type Bus struct {
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[Signal][]namedHandler
	pending  []item

	notify  chan struct{}
	stopped chan struct{}
	started atomic.Bool

	willQuit     atomic.Bool
	willQuitDone chan struct{}
}

// NewBus creates an idle bus. Call Run to start processing.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:       logger,
		handlers:     make(map[Signal][]namedHandler),
		notify:       make(chan struct{}, 1),
		stopped:      make(chan struct{}),
		willQuitDone: make(chan struct{}),
	}
}

// On registers a handler. Handlers for one signal run in registration order.
func (b *Bus) On(sig Signal, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[sig] = append(b.handlers[sig], namedHandler{name: name, fn: fn})
}

// Emit queues an event and returns immediately. will-quit is accepted once;
// later emits are dropped.
func (b *Bus) Emit(ev Event) {
	if ev.Signal == SignalWillQuit && !b.willQuit.CompareAndSwap(false, true) {
		b.logger.Debug("duplicate will-quit dropped")
		return
	}
	b.enqueue(item{ev: &ev, done: b.doneFor(ev)})
}

// EmitAndWait queues an event and blocks until every handler has returned.
// It must not be called from a handler.
func (b *Bus) EmitAndWait(ctx context.Context, ev Event) error {
	var done chan struct{}
	if ev.Signal == SignalWillQuit {
		if !b.willQuit.CompareAndSwap(false, true) {
			return b.wait(ctx, b.willQuitDone)
		}
		done = b.willQuitDone
	} else {
		done = make(chan struct{})
	}

	b.enqueue(item{ev: &ev, done: done})
	return b.wait(ctx, done)
}

// Dispatch runs fn on the loop. Use it to hand results from background
// goroutines back to loop-owned state.
func (b *Bus) Dispatch(fn func(ctx context.Context)) {
	b.enqueue(item{fn: fn})
}

// Stopped is closed when Run returns.
func (b *Bus) Stopped() <-chan struct{} {
	return b.stopped
}

// Run processes queued work until ctx is done. It may be called once.
func (b *Bus) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("lifecycle loop already running")
	}
	defer close(b.stopped)

	b.logger.Debug("lifecycle loop started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("lifecycle loop stopping")
			return nil

		case <-b.notify:
			for _, it := range b.drain() {
				b.execute(ctx, it)
			}
		}
	}
}

func (b *Bus) doneFor(ev Event) chan struct{} {
	if ev.Signal == SignalWillQuit {
		return b.willQuitDone
	}
	return nil
}

func (b *Bus) enqueue(it item) {
	b.mu.Lock()
	b.pending = append(b.pending, it)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Bus) drain() []item {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.pending
	b.pending = nil
	return items
}

func (b *Bus) wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-b.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) execute(ctx context.Context, it item) {
	if it.done != nil {
		defer close(it.done)
	}

	if it.fn != nil {
		b.safely(ctx, "dispatch", func(ctx context.Context) { it.fn(ctx) })
		return
	}

	b.mu.Lock()
	handlers := append([]namedHandler(nil), b.handlers[it.ev.Signal]...)
	b.mu.Unlock()

	b.logger.Debug("lifecycle signal", zap.String("signal", string(it.ev.Signal)), zap.Int("handlers", len(handlers)))

	ev := *it.ev
	for _, h := range handlers {
		b.safely(ctx, h.name, func(ctx context.Context) { h.fn(ctx, ev) })
	}
}

// safely keeps one misbehaving handler from killing the loop.
func (b *Bus) safely(ctx context.Context, name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("lifecycle handler panicked",
				zap.String("handler", name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	fn(ctx)
}
