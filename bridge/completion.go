package bridge

import (
	"context"
	"sync"

	"github.com/wippyai/corebind/errors"
)

type completionState uint8

const (
	statePending completionState = iota
	stateCompleted
	stateCancelled
)

// Completion is a single-assignment result slot filled by an engine
// callback. Complete takes effect at most once; Cancel before that
// suppresses delivery, and Cancel after it is a no-op. Results that arrive
// after cancellation, or a second time, go to the discard function so
// native resources they carry are released instead of leaked.
type Completion[T any] struct {
	val     T
	err     error
	discard func(T)
	done    chan struct{}
	mu      sync.Mutex
	state   completionState
}

// NewCompletion creates a pending completion.
func NewCompletion[T any]() *Completion[T] {
	return &Completion[T]{done: make(chan struct{})}
}

// OnDiscard sets the function that receives undelivered successful
// results.
func (c *Completion[T]) OnDiscard(fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discard = fn
}

// Complete delivers a result and reports whether it was accepted. It is
// safe to call from any goroutine, including when nobody waits.
func (c *Completion[T]) Complete(v T, err error) bool {
	c.mu.Lock()
	if c.state != statePending {
		discard := c.discard
		c.mu.Unlock()
		if discard != nil && err == nil {
			discard(v)
		}
		return false
	}
	c.val, c.err = v, err
	c.state = stateCompleted
	close(c.done)
	c.mu.Unlock()
	return true
}

// Cancel abandons the result. It reports false when the completion was
// already settled.
func (c *Completion[T]) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != statePending {
		return false
	}
	c.state = stateCancelled
	c.err = errors.Cancelled(errors.PhaseCallback, "operation cancelled")
	close(c.done)
	return true
}

// Done is closed once the completion is settled.
func (c *Completion[T]) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the completion settles or ctx ends. A ctx timeout
// leaves the completion pending; it does not cancel the native operation.
func (c *Completion[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrap(errors.PhaseCallback, errors.KindCancelled, ctx.Err(), "wait abandoned")
	}
}
