// Package loop provides the single-threaded scheduler the renderer runs on.
// Tasks may be scheduled from any goroutine but always run one at a time on
// the goroutine driving the loop, so state touched only from tasks needs no
// locking.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Do when the loop stopped before running the task.
var ErrStopped = errors.New("loop stopped")

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Schedule queues fn to run on the next tick. It reports false when the loop
// has stopped.
func (l *Loop) Schedule(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// RunPending runs queued tasks on the calling goroutine until the queue is
// empty, including tasks scheduled while running. It returns the number run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Run drives the loop until ctx is done. Tasks still queued at that point are
// dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	for {
		l.RunPending()
		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Schedule(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
}
