package pool

import (
	"context"
	"errors"
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"sync/atomic"
)

var Logger = logger.GetLogger("pool")

var (
	ErrPoolClosed = errors.New("pool: submit on closed pool")
	ErrNilTask    = errors.New("pool: nil task")
)

// Task is a unit of work executed by one worker
type Task func()

// Option configures a Pool
type Option func(*Pool)

// WithPanicHandler sets the function called with the recovered value when a task panics.
// The default handler logs the panic.
func WithPanicHandler(handler func(recovered any)) Option {
	return func(p *Pool) {
		if handler != nil {
			p.panicHandler = handler
		}
	}
}

// Pool is a fixed-size worker pool with an unbounded task queue
type Pool struct {
	queue        *queue[Task]
	workers      int
	wg           sync.WaitGroup
	closed       atomic.Bool
	running      atomic.Int64
	submitted    atomic.Uint64
	completed    atomic.Uint64
	panicHandler func(recovered any)
}

// New creates a pool and starts its workers. A worker count below one is raised to one.
func New(workers int, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		queue:   newQueue[Task](),
		workers: workers,
		panicHandler: func(recovered any) {
			Logger.Errorf("Recovered from panic in task: %v", recovered)
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(i)
	}

	Logger.Debugf("Started pool with %d workers", workers)
	return p
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Submit enqueues a task. It never blocks; if all workers are busy the task
// waits in the queue until a worker becomes free.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	if p.closed.Load() || !p.queue.Push(task) {
		return ErrPoolClosed
	}
	p.submitted.Add(1)
	return nil
}

// Shutdown stops accepting new tasks and waits until all queued and running tasks
// finished. If ctx expires first, the context error is returned and the pool keeps
// draining in the background; Stop can be used afterwards to abort the drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closed.Store(true)
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		Logger.Debugf("Pool drained, %d tasks completed", p.completed.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
}

// Stop stops accepting new tasks, drops every queued task and waits for the
// running tasks to return. It returns the number of dropped tasks.
func (p *Pool) Stop() int {
	p.closed.Store(true)
	dropped := p.queue.Discard()
	p.wg.Wait()

	if dropped > 0 {
		Logger.Warningf("Pool stopped, dropped %d queued tasks", dropped)
	}
	return dropped
}

// Workers returns the number of workers (the concurrency limit)
func (p *Pool) Workers() int {
	return p.workers
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Queued returns the number of tasks waiting for a worker
func (p *Pool) Queued() int {
	return p.queue.Len()
}

// Submitted returns the number of accepted tasks
func (p *Pool) Submitted() uint64 {
	return p.submitted.Load()
}

// Completed returns the number of tasks that returned (including panicked ones)
func (p *Pool) Completed() uint64 {
	return p.completed.Load()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// work executes tasks until the queue is closed and drained (or discarded)
func (p *Pool) work(id int) {
	defer p.wg.Done()

	for task := range p.queue.Recv() {
		p.run(task)
	}

	Logger.Debugf("Worker %d exited", id)
}

// run executes a single task, recovering panics so the worker survives
func (p *Pool) run(task Task) {
	p.running.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.panicHandler(r)
		}
		p.running.Add(-1)
		p.completed.Add(1)
	}()

	task()
}
