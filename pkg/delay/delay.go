// Package delay provides fixed-duration pauses used to pace calls against
// rate-limited APIs.
package delay

import (
	"context"
	"time"
)

// Delayer suspends callers for a fixed duration. A Delayer holds no timer
// state, so concurrent Waits are independent of each other.
type Delayer struct {
	d time.Duration
}

// New returns a Delayer for d
func New(d time.Duration) Delayer {
	return Delayer{d: d}
}

// Duration returns the configured pause
func (dl Delayer) Duration() time.Duration {
	return dl.d
}

// Wait blocks for the configured duration or until ctx is done
func (dl Delayer) Wait(ctx context.Context) error {
	if dl.d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(dl.d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pass waits like Wait and then hands v back unchanged, so a pause can be
// spliced into a sequence without touching the data flowing through it.
func Pass[T any](ctx context.Context, dl Delayer, v T) (T, error) {
	if err := dl.Wait(ctx); err != nil {
		return v, err
	}
	return v, nil
}
