package bridge

import (
	"context"
	"sync"

	"go2tv.app/castbridge/castframework"
)

// Call is the result of a module method. Accepted reports whether the
// work was handed to the dispatch queue. Done is closed once the work ran
// and Value and Err are set.
type Call[T any] struct {
	accepted bool
	done     chan struct{}
	once     sync.Once
	value    T
	err      error
}

func newCall[T any]() *Call[T] {
	return &Call[T]{
		accepted: true,
		done:     make(chan struct{}),
	}
}

// CompletedCall returns a Call that was never queued and already carries
// its outcome.
func CompletedCall[T any](value T, err error) *Call[T] {
	c := &Call[T]{done: make(chan struct{})}
	c.resolve(value, err)
	return c
}

// Accepted reports whether the work was queued.
func (c *Call[T]) Accepted() bool {
	return c.accepted
}

// Done is closed when the call completed.
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Err returns the call error. It is nil until Done is closed.
func (c *Call[T]) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Value returns the call result. It is the zero value until Done is closed.
func (c *Call[T]) Value() T {
	select {
	case <-c.done:
		return c.value
	default:
		var zero T
		return zero
	}
}

// Wait blocks until the call completes or ctx is done.
func (c *Call[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Call[T]) resolve(value T, err error) {
	c.once.Do(func() {
		c.value = value
		c.err = err
		close(c.done)
	})
}

// resolveFrom completes the call with the outcome of pr without blocking
// the caller.
func (c *Call[T]) resolveFrom(pr castframework.PendingResult, value T) {
	if pr == nil {
		c.resolve(value, nil)
		return
	}

	go func() {
		err := <-pr
		c.resolve(value, err)
	}()
}
