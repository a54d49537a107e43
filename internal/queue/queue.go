// Package queue provides the bounded FIFO connecting pipeline workers.
//
// The queue is the only synchronization primitive shared between workers:
// producers put batches, consumers drain batches, and a wake hook lets an
// idle consumer be restarted before new items become visible.
package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned when the queue cannot accept more items.
	ErrFull = errors.New("queue full")
	// ErrEmpty is returned when the queue has no items.
	ErrEmpty = errors.New("queue empty")
)

// maxRetrySleep caps the exponential backoff between bulk-put attempts.
const maxRetrySleep = time.Second

// Queue is a fixed-capacity FIFO with atomic bulk operations.
//
// PutMany is all-or-none: a bulk reader never observes part of a batch.
// When the batch does not fit, PutMany backs off and retries with the mutex
// released so consumers can drain in between.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	head       int
	capacity   int
	retryCount int
	retrySleep time.Duration
	wake       func()
}

// New creates a queue holding at most capacity items. retryCount and
// retrySleep control the PutMany backoff loop.
func New[T any](capacity, retryCount int, retrySleep time.Duration) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		capacity:   capacity,
		retryCount: retryCount,
		retrySleep: retrySleep,
	}
}

// SetWake installs the consumer-wake hook. Every put invokes it before the
// items become visible, so an idled-out consumer is running by the time
// there is work to read.
func (q *Queue[T]) SetWake(fn func()) {
	q.mu.Lock()
	q.wake = fn
	q.mu.Unlock()
}

func (q *Queue[T]) wakeConsumer() {
	q.mu.Lock()
	fn := q.wake
	q.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// size must be called with q.mu held.
func (q *Queue[T]) size() int { return len(q.items) - q.head }

// compact must be called with q.mu held.
func (q *Queue[T]) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
}

// PutNowait enqueues a single item or fails with ErrFull.
func (q *Queue[T]) PutNowait(item T) error {
	q.wakeConsumer()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size() >= q.capacity {
		return ErrFull
	}
	q.items = append(q.items, item)
	return nil
}

// GetNowait dequeues a single item or fails with ErrEmpty.
func (q *Queue[T]) GetNowait() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size() == 0 {
		return zero, ErrEmpty
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.compact()
	return item, nil
}

// PutMany enqueues all items as one atomic placement. If the batch does not
// fit it sleeps retrySleep·2^attempt (capped at one second) and retries up
// to retryCount times before failing with ErrFull. Readers never observe a
// partial batch.
func (q *Queue[T]) PutMany(items []T) error {
	if len(items) == 0 {
		return nil
	}

	for attempt := 0; ; attempt++ {
		q.wakeConsumer()

		q.mu.Lock()
		if q.capacity-q.size() >= len(items) {
			q.items = append(q.items, items...)
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		if attempt >= q.retryCount {
			return ErrFull
		}
		time.Sleep(backoff(q.retrySleep, attempt))
	}
}

// GetMany dequeues up to max items atomically. It may return fewer items,
// including none, when the queue holds fewer.
func (q *Queue[T]) GetMany(max int) []T {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.size()
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])
	var zero T
	for i := q.head; i < q.head+n; i++ {
		q.items[i] = zero
	}
	q.head += n
	q.compact()
	return out
}

// GetOne dequeues a single item, reporting whether one was available.
func (q *Queue[T]) GetOne() (T, bool) {
	items := q.GetMany(1)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size()
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return q.capacity }

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < maxRetrySleep; i++ {
		d *= 2
	}
	if d > maxRetrySleep {
		d = maxRetrySleep
	}
	return d
}
