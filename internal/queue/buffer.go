package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by ReceiveContext once the buffer is closed and drained.
var ErrClosed = errors.New("buffer closed")

// GrowableBuffer is a thread-safe FIFO that doubles its capacity when it
// reaches 70% full.
type GrowableBuffer[T any] struct {
	mu       sync.Mutex
	notify   chan struct{} // one pending wakeup for receivers
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	resizeCount   int
}

// NewGrowableBuffer creates a new buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &GrowableBuffer[T]{
		notify:   make(chan struct{}, 1),
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
}

// Send appends an item, growing the buffer at 70% capacity.
// Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++

	b.wake()
	return true
}

// Receive blocks until an item is available or the buffer is closed and empty.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	item, err := b.ReceiveContext(context.Background())
	return item, err == nil
}

// ReceiveContext blocks until an item is available, the buffer is closed and
// empty (ErrClosed), or ctx is done.
func (b *GrowableBuffer[T]) ReceiveContext(ctx context.Context) (T, error) {
	for {
		b.mu.Lock()
		if b.count > 0 {
			item := b.pop()
			if b.count > 0 || b.closed {
				b.wake()
			}
			b.mu.Unlock()
			return item, nil
		}
		closed := b.closed
		b.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-b.notify:
		}
	}
}

// TryReceive returns the next item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items (all items if max <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.pop()
	}
	return result
}

// Close stops accepting items. Receivers get the remaining items, then ErrClosed.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.wake()
}

// Len returns the current number of items in the buffer.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity of the buffer.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		ResizeCount:   b.resizeCount,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	ResizeCount   int
}

// pop removes the head item. Must be called with lock held and count > 0.
func (b *GrowableBuffer[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalSent++
	return item
}

// wake leaves a wakeup for one receiver. Must be called with lock held.
func (b *GrowableBuffer[T]) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// grow doubles the buffer capacity. Must be called with lock held.
func (b *GrowableBuffer[T]) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
