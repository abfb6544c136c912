// Package queue provides the bounded FIFO that sits between the acceptor and
// the worker pool.
package queue

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Put after Close and by Get once a closed queue is empty
var ErrClosed = errors.New("queue closed")

// Queue is a fixed-capacity ring buffer with blocking Put and Get.
// Invariant: 0 <= size <= len(buf).
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []T
	in       int // next slot to write
	out      int // next slot to read
	size     int
	closed   bool
}

// New creates a queue holding at most capacity items. capacity must be positive.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	q := &Queue[T]{buf: make([]T, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Put appends item at the tail, blocking while the queue is full
func (q *Queue[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == len(q.buf) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}

	q.buf[q.in] = item
	q.in = (q.in + 1) % len(q.buf)
	q.size++
	q.notEmpty.Signal()
	return nil
}

// Get removes and returns the head item, blocking while the queue is empty.
// After Close, remaining items are still handed out; ErrClosed is returned
// once none are left.
func (q *Queue[T]) Get() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	var item T
	if q.size == 0 {
		return item, ErrClosed
	}

	item = q.buf[q.out]
	var zero T
	q.buf[q.out] = zero
	q.out = (q.out + 1) % len(q.buf)
	q.size--
	q.notFull.Signal()
	return item, nil
}

// Close wakes every blocked Put and Get. Items already queued stay available to Get.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Drain removes and returns all queued items without blocking
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]T, 0, q.size)
	var zero T
	for q.size > 0 {
		items = append(items, q.buf[q.out])
		q.buf[q.out] = zero
		q.out = (q.out + 1) % len(q.buf)
		q.size--
	}
	q.notFull.Broadcast()
	return items
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}
