// Package workflow defines the narrow contracts this core expects from its
// durable-execution substrate: memoized steps, fire-and-forget signal
// dispatch, and long-duration suspend on signals. The in-process
// implementation here backs the CLI and tests; a production deployment
// satisfies the same interfaces with a real workflow engine.
package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Signal key prefixes used across the application.
const (
	KeyOutcomePrefix   = "outcome."
	KeyTaxonomyCreated = "taxonomy.created"
	KeyReviewPrefix    = "review."
	KeyBatchDonePrefix = "batch.done."
)

// ErrSignalTimeout indicates a WaitForSignal call expired before a
// matching signal arrived.
var ErrSignalTimeout = errors.New("timed out waiting for signal")

// Signal is a routed event with an opaque payload.
type Signal struct {
	Payload any
	Key     string
}

// Handler consumes a dispatched signal.
type Handler func(ctx context.Context, signal Signal)

// Bus dispatches signals to subscribers and to suspended waiters.
// Delivery is at-least-once; consumers must be idempotent.
type Bus interface {
	Dispatch(ctx context.Context, signal Signal)
	WaitForSignal(ctx context.Context, key string, timeout time.Duration) (Signal, error)
	Subscribe(keyPrefix string, handler Handler) (cancel func())
}

// Stepper memoizes named units of work. A step that already ran
// successfully is not re-executed on redelivery; effects inside a step must
// themselves be idempotent since execution is at-least-once.
type Stepper interface {
	Step(ctx context.Context, name string, fn func(context.Context) error) error
}

// InProc is an in-process Bus and Stepper.
type InProc struct {
	steps       map[string]error
	waiters     map[string][]chan Signal
	subscribers []subscription
	nextSub     int
	mu          sync.Mutex
	wg          sync.WaitGroup
}

type subscription struct {
	handler Handler
	prefix  string
	id      int
}

// NewInProc creates an in-process substrate.
func NewInProc() *InProc {
	return &InProc{
		steps:   make(map[string]error),
		waiters: make(map[string][]chan Signal),
	}
}

// Step runs fn once per name. Repeated delivery of the same unit of work
// observes the memoized result instead of re-running the effect.
func (p *InProc) Step(ctx context.Context, name string, fn func(context.Context) error) error {
	p.mu.Lock()
	if err, done := p.steps[name]; done {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	err := fn(ctx)

	p.mu.Lock()
	// Failed steps are not memoized; the substrate's retry policy may
	// re-enter them.
	if err == nil {
		p.steps[name] = nil
	}
	p.mu.Unlock()
	return err
}

// Dispatch delivers a signal to all matching subscribers asynchronously
// and wakes any suspended waiters on the exact key.
func (p *InProc) Dispatch(ctx context.Context, signal Signal) {
	p.mu.Lock()
	waiters := p.waiters[signal.Key]
	delete(p.waiters, signal.Key)

	var matched []Handler
	for _, sub := range p.subscribers {
		if strings.HasPrefix(signal.Key, sub.prefix) {
			matched = append(matched, sub.handler)
		}
	}
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- signal
	}

	for _, handler := range matched {
		p.wg.Add(1)
		go func(h Handler) {
			defer p.wg.Done()
			h(ctx, signal)
		}(handler)
	}
}

// WaitForSignal suspends until a signal with the exact key arrives or the
// timeout elapses. A zero timeout waits until context cancellation.
func (p *InProc) WaitForSignal(ctx context.Context, key string, timeout time.Duration) (Signal, error) {
	ch := make(chan Signal, 1)

	p.mu.Lock()
	p.waiters[key] = append(p.waiters[key], ch)
	p.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case signal := <-ch:
		return signal, nil
	case <-timer:
		p.removeWaiter(key, ch)
		return Signal{}, ErrSignalTimeout
	case <-ctx.Done():
		p.removeWaiter(key, ch)
		return Signal{}, ctx.Err()
	}
}

// Subscribe registers a handler for every signal whose key starts with
// keyPrefix. The returned cancel func removes the subscription.
func (p *InProc) Subscribe(keyPrefix string, handler Handler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subscribers = append(p.subscribers, subscription{
		prefix:  keyPrefix,
		handler: handler,
		id:      id,
	})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.subscribers {
			if sub.id == id {
				p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Drain blocks until all in-flight subscriber handlers finish. Tests and
// the CLI use it to observe cascade effects deterministically.
func (p *InProc) Drain() {
	p.wg.Wait()
}

func (p *InProc) removeWaiter(key string, ch chan Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	waiters := p.waiters[key]
	for i, w := range waiters {
		if w == ch {
			p.waiters[key] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

var (
	_ Bus     = (*InProc)(nil)
	_ Stepper = (*InProc)(nil)
)
