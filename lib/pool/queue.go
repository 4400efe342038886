package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// queue is a lock-free multi-producer single-consumer queue.
// Producers append to a linked list with CAS operations, a single consumer
// goroutine moves the items into an unbuffered channel that any number of
// receivers may read from.
type queue[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan T
	size     atomic.Int64 // items pushed but not yet handed to a receiver
	closed   atomic.Bool
	done     chan struct{} // closed by discard
	discard  sync.Once
	consumer sync.WaitGroup

	// condition variable for the idle consumer
	mu   sync.Mutex
	cond *sync.Cond
}

// newQueue creates the queue and starts its consumer goroutine
func newQueue[T any]() *queue[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &queue[T]{
		out:  make(chan T),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push appends an item. It returns false if the queue is closed.
// Push is safe for concurrent use and never blocks on the consumer.
func (q *queue[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	q.size.Add(1)

	var backoff uint8
	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have moved the tail, that is fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin at low contention, yield more often as contention grows
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer while holding the mutex, so a signal can not get
// lost between the consumer's emptiness check and its call to Wait
func (q *queue[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume moves items from the linked list to the output channel
func (q *queue[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			select {
			case <-q.done:
				return
			case q.out <- next.value:
			}

			// move head only after the value was handed out
			q.head.Store(next)
			q.size.Add(-1)

			var zero T
			next.value = zero
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel items are delivered on. It is closed once the queue
// is closed and drained, or right after Discard.
func (q *queue[T]) Recv() <-chan T {
	return q.out
}

// Close prevents further pushes. Items already queued are still delivered.
func (q *queue[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// Discard closes the queue and drops all items that were not handed out yet.
// It returns the number of dropped items.
func (q *queue[T]) Discard() int {
	q.closed.Store(true)
	q.discard.Do(func() { close(q.done) })
	q.wake()
	q.consumer.Wait()
	return int(q.size.Load())
}

// Len returns the number of items waiting in the queue
func (q *queue[T]) Len() int {
	return int(q.size.Load())
}
