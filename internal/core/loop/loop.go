// Package loop provides the single-threaded task queue that owns all script
// state. Any goroutine may Post; only the owner goroutine may Drain or Run.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("loop is closed")

// Loop is a FIFO of deferred tasks executed on its owner goroutine.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

// Post schedules fn for a later Drain. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Drain runs queued tasks until the queue is empty, including tasks posted
// while draining. It returns how many tasks ran.
func (l *Loop) Drain() int {
	ran := 0
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			fn()
			ran++
		}
	}
}

// Wait blocks until at least one task is pending or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	for {
		if l.Pending() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunUntil drains tasks as they arrive until cond holds or ctx is done.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	for {
		l.Drain()
		if cond() {
			return nil
		}
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
}

// Run drains tasks as they arrive and calls tick every interval with the
// elapsed time since the previous tick, until ctx is done.
func (l *Loop) Run(ctx context.Context, interval time.Duration, tick func(dt time.Duration)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			l.Drain()
			return err
		}
		select {
		case <-ctx.Done():
			l.Drain()
			return ctx.Err()
		case <-l.wake:
			l.Drain()
		case now := <-ticker.C:
			l.Drain()
			tick(now.Sub(last))
			last = now
		}
	}
}

// Close rejects further posts. Already queued tasks can still be drained.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
