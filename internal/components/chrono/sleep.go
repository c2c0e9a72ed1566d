package chrono

import (
	"context"
	"time"
)

// Sleep waits for `d` or until ctx is done, in which case the context error is returned.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LinearBackoff is the delay before retry number `n` (starting at 1): base * n.
func LinearBackoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		return 0
	}
	return base * time.Duration(n)
}
