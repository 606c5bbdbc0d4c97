package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tridentframe/launcher/internal/domain"
)

// ErrTimeout is returned when the backend never became reachable.
var ErrTimeout = errors.New("backend not ready before timeout")

// WaitUntil polls prober every interval until it succeeds, timeout passes
// or ctx is done. The first probe runs immediately.
func WaitUntil(ctx context.Context, prober domain.ReadinessProber, addr string, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = prober.Probe(ctx, addr); lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s: %v", ErrTimeout, addr, lastErr)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
