package bridge

import (
	"context"
	"time"
)

// RetryPolicy is a bounded retry with a fixed delay between attempts.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	// Sleep waits between attempts. nil uses a timer that honours ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetry is used for pairing and unpairing.
var DefaultRetry = RetryPolicy{Attempts: 3, Delay: time.Second}

// Run calls attempt with ordinals 1..Attempts until it reports success.
// The delay is observed before every attempt after the first. Run returns
// false when attempts are exhausted or ctx is cancelled during a delay.
func (p RetryPolicy) Run(ctx context.Context, attempt func(n int) bool) bool {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	for n := 1; n <= p.Attempts; n++ {
		if n > 1 {
			if err := sleep(ctx, p.Delay); err != nil {
				return false
			}
		}
		if attempt(n) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
