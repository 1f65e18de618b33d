package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunBoundsConcurrency(t *testing.T) {
	const capacity = 3
	const tasks = 20

	l := New(capacity)
	var running, peak, completed int64
	var wg sync.WaitGroup

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Run(context.Background(), func() error {
				now := atomic.AddInt64(&running, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&running, -1)
				atomic.AddInt64(&completed, 1)
				return nil
			})
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > capacity {
		t.Fatalf("observed %d simultaneous tasks, capacity %d", peak, capacity)
	}
	if completed != tasks {
		t.Fatalf("completed %d of %d tasks", completed, tasks)
	}
	if l.Running() != 0 || l.Waiting() != 0 {
		t.Fatalf("limiter not drained: running=%d waiting=%d", l.Running(), l.Waiting())
	}
}

func TestReleaseWakesWaitersInFIFOOrder(t *testing.T) {
	l := New(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	const waiters = 5
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.Release()
		}()
		// Queue each waiter before starting the next so arrival order is known.
		for l.Waiting() != i+1 {
			time.Sleep(time.Millisecond)
		}
	}

	l.Release()
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("wakeup order %v, want sequential", order)
		}
	}
}

func TestTaskFailureReleasesSlot(t *testing.T) {
	l := New(1)
	boom := errors.New("boom")
	if err := l.Run(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
	// A failed task must not leak its slot.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(context.Background(), func() error { return nil })
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slot leaked after task failure")
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	l := New(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Acquire(ctx) }()
	for l.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire did not return")
	}
	if l.Waiting() != 0 {
		t.Fatalf("cancelled waiter left in queue: %d", l.Waiting())
	}
}

func TestAcquireRejectsDoneContext(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
