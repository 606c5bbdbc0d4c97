// Package metrics records backend supervision metrics.
package metrics

import (
	"time"

	"github.com/tridentframe/launcher/internal/domain"
)

// Collector receives supervisor events.
type Collector interface {
	// StateTransition records a supervisor state change.
	StateTransition(from, to domain.SupervisorState)

	// LaunchAttempt records a Start outcome, labelled by error code ("" for success).
	LaunchAttempt(rule string, code domain.ErrorCode)

	// BackendExit records an exit, expected or not.
	BackendExit(expected bool, exitCode int)

	// StopDuration records how long Stop took and whether it had to force-kill.
	StopDuration(d time.Duration, forced bool)

	// ReadinessWait records how long the backend took to accept connections.
	ReadinessWait(d time.Duration, ready bool)
}

type noopCollector struct{}

func (noopCollector) StateTransition(domain.SupervisorState, domain.SupervisorState) {}
func (noopCollector) LaunchAttempt(string, domain.ErrorCode)                        {}
func (noopCollector) BackendExit(bool, int)                                         {}
func (noopCollector) StopDuration(time.Duration, bool)                              {}
func (noopCollector) ReadinessWait(time.Duration, bool)                             {}

// NewNoop returns a collector that discards everything.
func NewNoop() Collector {
	return noopCollector{}
}
