// Package pool provides a bounded worker pool with an unbounded submission queue.
//
// A Pool starts a fixed number of worker goroutines when it is created. Tasks are
// handed to the workers through a lock-free multi-producer single-consumer queue,
// so Submit never blocks the caller: if all workers are busy the task simply waits
// in the queue. At most Workers() tasks run at the same time.
//
// Features and Guarantees:
//
//   - Bounded concurrency: exactly the configured number of workers, never more
//   - Non-blocking submission: Submit only appends to the queue
//   - Unbounded backlog: the queue grows with the number of pending tasks. There is
//     no shedding policy, Queued() exposes the current depth for monitoring
//   - Panic isolation: a panicking task is recovered and reported, the worker keeps
//     serving the queue
//   - Shutdown(ctx): graceful, stops accepting tasks and drains the queue
//   - Stop(): immediate, stops accepting tasks, discards the queue and waits only for
//     the tasks that are currently running
//
// Usage:
//
//	p := pool.New(4)
//	_ = p.Submit(func() { ... })
//	_ = p.Shutdown(context.Background())
package pool
