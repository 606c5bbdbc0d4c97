package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tridentframe/launcher/internal/domain"
)

func startBus(t *testing.T) (*Bus, context.CancelFunc) {
	t.Helper()
	bus := NewBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bus.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-bus.Stopped()
	})
	return bus, cancel
}

func TestBus_HandlersRunInOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var mu sync.Mutex
	var order []string
	record := func(name string) Handler {
		return func(ctx context.Context, ev Event) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name+":"+string(ev.Signal))
		}
	}
	bus.On(SignalReady, "window", record("window"))
	bus.On(SignalReady, "backend", record("backend"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()

	require.NoError(t, bus.EmitAndWait(ctx, Event{Signal: SignalReady}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"window:ready", "backend:ready"}, order)
}

func TestBus_EmitIsAsynchronous(t *testing.T) {
	bus, _ := startBus(t)

	release := make(chan struct{})
	handled := make(chan Event, 1)
	bus.On(SignalWindowClosed, "slow", func(ctx context.Context, ev Event) {
		<-release
		handled <- ev
	})

	returned := make(chan struct{})
	go func() {
		bus.Emit(Event{Signal: SignalWindowClosed, Window: "w1"})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a running handler")
	}

	close(release)
	select {
	case ev := <-handled:
		assert.Equal(t, domain.WindowHandle("w1"), ev.Window)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestBus_EmitAndWaitBlocksUntilHandlersReturn(t *testing.T) {
	bus, _ := startBus(t)

	var finished atomic.Bool
	bus.On(SignalWillQuit, "stop-backend", func(ctx context.Context, ev Event) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	require.NoError(t, bus.EmitAndWait(context.Background(), Event{Signal: SignalWillQuit}))
	assert.True(t, finished.Load())
}

func TestBus_WillQuitDeliveredOnce(t *testing.T) {
	bus, _ := startBus(t)

	var calls atomic.Int32
	bus.On(SignalWillQuit, "stop-backend", func(ctx context.Context, ev Event) {
		calls.Add(1)
	})

	bus.Emit(Event{Signal: SignalWillQuit})
	require.NoError(t, bus.EmitAndWait(context.Background(), Event{Signal: SignalWillQuit}))
	bus.Emit(Event{Signal: SignalWillQuit})
	require.NoError(t, bus.EmitAndWait(context.Background(), Event{Signal: SignalWillQuit}))

	// flush anything still queued
	done := make(chan struct{})
	bus.Dispatch(func(context.Context) { close(done) })
	<-done

	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_DispatchIsSerialised(t *testing.T) {
	bus, _ := startBus(t)

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go bus.Dispatch(func(context.Context) {
			defer wg.Done()
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestBus_PanickingHandlerDoesNotStopLoop(t *testing.T) {
	bus, _ := startBus(t)

	var after atomic.Bool
	bus.On(SignalActivate, "broken", func(ctx context.Context, ev Event) { panic("boom") })
	bus.On(SignalActivate, "healthy", func(ctx context.Context, ev Event) { after.Store(true) })

	require.NoError(t, bus.EmitAndWait(context.Background(), Event{Signal: SignalActivate}))
	assert.True(t, after.Load())
}

func TestBus_EmitAndWaitAfterStop(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = bus.Run(ctx) }()
	cancel()
	<-bus.Stopped()

	err := bus.EmitAndWait(context.Background(), Event{Signal: SignalActivate})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestBus_EmitAndWaitHonoursContext(t *testing.T) {
	bus := NewBus(zap.NewNop()) // never run

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.EmitAndWait(ctx, Event{Signal: SignalReady})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_RunOnlyOnce(t *testing.T) {
	bus, _ := startBus(t)
	require.Eventually(t, func() bool { return bus.started.Load() }, time.Second, time.Millisecond)

	assert.Error(t, bus.Run(context.Background()))
}
