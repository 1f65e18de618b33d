// Package limiter bounds the number of simultaneously running tasks with a
// fixed-capacity semaphore that wakes waiters in FIFO order.
package limiter

import (
	"context"
	"errors"
	"sync"
)

// Limiter is a fixed-capacity semaphore. Waiters are granted slots strictly
// in the order they asked; a buffered channel would not guarantee that.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	running  int
	waiters  []chan struct{}
}

// New constructs a Limiter. Capacity below 1 is treated as 1.
func New(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{capacity: capacity}
}

// Capacity returns the configured slot count.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// Running returns the number of currently held slots.
func (l *Limiter) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Waiting returns the number of queued waiters.
func (l *Limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// Acquire blocks until a slot is free or ctx is done. A granted slot must be
// returned with Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	if ctx == nil {
		return errors.New("limiter: nil context")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.running < l.capacity {
		l.running++
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		removed := false
		for i, w := range l.waiters {
			if w == ready {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				removed = true
				break
			}
		}
		l.mu.Unlock()
		if !removed {
			// The slot was granted concurrently with cancellation; pass it on
			// so no waiter starves.
			l.Release()
		}
		return ctx.Err()
	}
}

// Release frees a slot, waking the oldest waiter if any. The slot transfers
// directly, so the running count is unchanged while waiters remain.
func (l *Limiter) Release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		ready := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(ready)
		return
	}
	if l.running > 0 {
		l.running--
	}
	l.mu.Unlock()
}

// Run executes task while holding a slot. The slot is released whether the
// task succeeds or fails, so one task's error never deadlocks the rest.
func (l *Limiter) Run(ctx context.Context, task func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return task()
}
