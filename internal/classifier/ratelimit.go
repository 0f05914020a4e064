package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter gates classifier dispatch to at most `calls` per rolling window.
// One limiter serves one batch; classifications across a batch run
// concurrently but enter the classifier through this gate.
type Limiter struct {
	stamps []time.Time
	window time.Duration
	calls  int
	mu     sync.Mutex
}

// NewLimiter creates a limiter allowing `calls` dispatches per `window`.
func NewLimiter(calls int, window time.Duration) *Limiter {
	if calls <= 0 {
		calls = 2
	}
	if window <= 0 {
		window = 15 * time.Second
	}
	return &Limiter{
		calls:  calls,
		window: window,
	}
}

// Wait blocks until a dispatch slot is available or the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait := l.tryAcquire()
		if wait <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// tryAcquire claims a slot, returning zero on success or the time until
// the oldest in-window dispatch expires.
func (l *Limiter) tryAcquire() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	live := l.stamps[:0]
	for _, stamp := range l.stamps {
		if stamp.After(cutoff) {
			live = append(live, stamp)
		}
	}
	l.stamps = live

	if len(l.stamps) < l.calls {
		l.stamps = append(l.stamps, now)
		return 0
	}
	return l.stamps[0].Sub(cutoff)
}
