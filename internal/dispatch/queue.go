// Package dispatch provides the serialized execution queue that every
// cast operation and cast callback runs on.
package dispatch

import "sync"

// Queue runs posted functions one at a time, in the order they were posted.
// Post never blocks the caller.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueue creates a Queue and starts its worker goroutine.
func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	go q.run()
	return q
}

// Post schedules fn and reports whether it was accepted. Functions
// posted after Close are dropped.
func (q *Queue) Post(fn func()) bool {
	if fn == nil {
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until every function posted before the call has run.
// It must not be called from inside a queued function.
func (q *Queue) Flush() {
	ch := make(chan struct{})
	if !q.Post(func() { close(ch) }) {
		<-q.done
		return
	}

	select {
	case <-ch:
	case <-q.done:
	}
}

// Close stops accepting work, runs what is already queued and waits
// for the worker to exit. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.tasks) == 0 {
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()

			fn()
		}
	}
}
