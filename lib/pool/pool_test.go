package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it returns true or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewClampsWorkers(t *testing.T) {
	p := New(0)
	defer p.Stop()

	if p.Workers() != 1 {
		t.Fatalf("Expected 1 worker, got %d", p.Workers())
	}
}

// TestPoolRunsAllTasks submits many tasks and waits for all of them
func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4)

	var count atomic.Int64
	for i := 0; i < 1000; i++ {
		if err := p.Submit(func() { count.Add(1) }); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if count.Load() != 1000 {
		t.Fatalf("Expected 1000 executed tasks, got %d", count.Load())
	}
	if p.Submitted() != 1000 || p.Completed() != 1000 {
		t.Fatalf("Unexpected counters: submitted=%d completed=%d", p.Submitted(), p.Completed())
	}
}

// TestPoolConcurrencyBound makes sure no more than Workers() tasks run at the same time
// and that excess tasks wait in the queue
func TestPoolConcurrencyBound(t *testing.T) {
	const workers = 2
	const tasks = 10

	p := New(workers)
	defer p.Stop()

	release := make(chan struct{})
	var current, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	waitFor(t, time.Second, func() bool { return p.Running() == workers })
	waitFor(t, time.Second, func() bool { return p.Queued() == tasks-workers })

	close(release)
	wg.Wait()

	if peak.Load() > workers {
		t.Fatalf("Peak concurrency %d exceeds %d workers", peak.Load(), workers)
	}
	if peak.Load() != workers {
		t.Fatalf("Expected peak concurrency %d, got %d", workers, peak.Load())
	}
}

// TestPoolSubmitDoesNotBlock checks that submission returns while all workers are busy
func TestPoolSubmitDoesNotBlock(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Stop()
	}()

	_ = p.Submit(func() { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = p.Submit(func() {})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Submit blocked while all workers were busy")
	}
}

// TestPoolPanicIsolation verifies that a panicking task does not kill its worker
func TestPoolPanicIsolation(t *testing.T) {
	var panics atomic.Int64
	p := New(1, WithPanicHandler(func(any) { panics.Add(1) }))

	var ran atomic.Bool
	_ = p.Submit(func() { panic("boom") })
	_ = p.Submit(func() { ran.Store(true) })

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if panics.Load() != 1 {
		t.Fatalf("Expected 1 recovered panic, got %d", panics.Load())
	}
	if !ran.Load() {
		t.Fatalf("Task after panic did not run")
	}
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p := New(1)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolSubmitNilTask(t *testing.T) {
	p := New(1)
	defer p.Stop()

	if err := p.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Fatalf("Expected ErrNilTask, got %v", err)
	}
}

// TestPoolShutdownTimeout checks that Shutdown honours the context
func TestPoolShutdownTimeout(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	_ = p.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	close(release)
	p.Stop()
}

// TestPoolStopDropsQueued checks the immediate shutdown path
func TestPoolStopDropsQueued(t *testing.T) {
	p := New(1)

	started := make(chan struct{})
	release := make(chan struct{})
	_ = p.Submit(func() {
		close(started)
		<-release
	})

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		_ = p.Submit(func() { ran.Add(1) })
	}

	<-started
	waitFor(t, time.Second, func() bool { return p.Queued() == 5 })

	stopped := make(chan int)
	go func() { stopped <- p.Stop() }()

	// the queue must be discarded before the running task returns
	waitFor(t, time.Second, func() bool {
		select {
		case <-p.queue.done:
			return true
		default:
			return false
		}
	})
	time.Sleep(10 * time.Millisecond)
	close(release)

	select {
	case dropped := <-stopped:
		if dropped != 5 {
			t.Fatalf("Expected 5 dropped tasks, got %d", dropped)
		}
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return")
	}

	if ran.Load() != 0 {
		t.Fatalf("Expected no queued task to run, got %d", ran.Load())
	}
}
