package reader

import (
	"context"
	"time"
)

// Backoff computes the delay before the next reconnect cycle. Foreground
// runs use a fixed delay; service mode doubles per consecutive failure up
// to Max so a dead reader never goes quiet for long.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Exponential bool
}

// Delay returns the wait for the given count of consecutive failures.
func (b Backoff) Delay(failures int) time.Duration {
	d := b.Base
	if d <= 0 {
		d = 5 * time.Second
	}
	if !b.Exponential || failures <= 1 {
		return d
	}
	for i := 1; i < failures; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Wait sleeps for Delay(failures), returning early if ctx is cancelled.
func (b Backoff) Wait(ctx context.Context, failures int) error {
	t := time.NewTimer(b.Delay(failures))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
