//go:build !windows

package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProcessManager_TerminateStopsBackend(t *testing.T) {
	pm := NewProcessManager()
	handle, err := NewSpawner("", zap.NewNop()).Spawn(helperTarget(t, "sleep"), testPort)
	require.NoError(t, err)

	require.NoError(t, pm.Terminate(handle.PID()))

	done := make(chan int, 1)
	go func() {
		code, _ := handle.Wait()
		done <- code
	}()

	select {
	case code := <-done:
		assert.Equal(t, -1, code, "expected exit by signal")
	case <-time.After(10 * time.Second):
		t.Fatal("backend ignored SIGTERM")
	}
}

func TestProcessManager_TerminateIgnoredThenKill(t *testing.T) {
	pm := NewProcessManager()
	handle, err := NewSpawner("", zap.NewNop()).Spawn(helperTarget(t, "ignore-term"), testPort)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = handle.Wait()
		close(done)
	}()

	// Give the helper time to install its signal disposition.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, pm.Terminate(handle.PID()))

	select {
	case <-done:
		t.Fatal("backend should have ignored SIGTERM")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, pm.KillTree(handle.PID()))
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("backend survived KillTree")
	}
}
