package util

import (
	"context"
	"errors"
	"sync"
)

var ErrRingDisposed = errors.New("ring buffer disposed")

// RingBuffer is a fixed capacity FIFO. A single mutex covers every operation,
// Offer and Poll never block, a full ring rejects new entries instead of
// overwriting old ones. An entry belongs to the ring between Offer and Poll,
// Poll clears the slot so the ring keeps no reference to delivered values.
type RingBuffer[T any] struct {
	mutex    sync.Mutex
	items    []T
	head     int
	tail     int
	count    int
	signal   chan struct{}
	done     chan struct{}
	disposed bool
}

func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size < 1 {
		panic(size)
	}
	return &RingBuffer[T]{
		items:  make([]T, size),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (rb *RingBuffer[T]) Cap() int {
	return len(rb.items)
}

func (rb *RingBuffer[T]) Len() int {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	return rb.count
}

// Offer appends v and reports false when the ring is full.
func (rb *RingBuffer[T]) Offer(v T) (bool, error) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if rb.disposed {
		return false, ErrRingDisposed
	}
	if rb.count == len(rb.items) {
		return false, nil
	}
	rb.items[rb.tail] = v
	rb.tail = (rb.tail + 1) % len(rb.items)
	rb.count++
	rb.notify()
	return true, nil
}

// Poll removes the oldest entry, ok is false when the ring is empty or disposed.
func (rb *RingBuffer[T]) Poll() (T, bool) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	var zero T
	if rb.disposed || rb.count == 0 {
		return zero, false
	}
	v := rb.items[rb.head]
	rb.items[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.items)
	rb.count--
	if rb.count > 0 {
		rb.notify()
	}
	return v, true
}

// Wait blocks until an entry is available, the context is done or the ring
// is disposed.
func (rb *RingBuffer[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	for {
		v, ok := rb.Poll()
		if ok {
			return v, nil
		}
		select {
		case <-rb.signal:
		case <-rb.done:
			return zero, ErrRingDisposed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Dispose clears every occupied slot and returns how many entries were
// released. The ring rejects all later offers.
func (rb *RingBuffer[T]) Dispose() int {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if rb.disposed {
		return 0
	}
	var zero T
	released := rb.count
	for ; rb.count > 0; rb.count-- {
		rb.items[rb.head] = zero
		rb.head = (rb.head + 1) % len(rb.items)
	}
	rb.head, rb.tail = 0, 0
	rb.disposed = true
	close(rb.done)
	return released
}

func (rb *RingBuffer[T]) notify() {
	select {
	case rb.signal <- struct{}{}:
	default:
	}
}
