// Package broadcast provides a bounded, lagged-drop broadcast hub: one
// producer, any number of receivers, and a fixed-size ring of recent
// messages. Publishing never waits on receivers.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("broadcast: hub closed")

// LaggedError is returned by Recv when the receiver fell more than the hub
// capacity behind. The receiver is moved to the oldest retained message.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: receiver lagged, %d messages skipped", e.Skipped)
}

type Hub[T any] struct {
	mu     sync.RWMutex
	ring   []T
	head   uint64
	wake   chan struct{}
	closed bool

	receivers atomic.Int64
}

func New[T any](capacity int) *Hub[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Hub[T]{
		ring: make([]T, capacity),
		wake: make(chan struct{}),
	}
}

// Publish stores v and wakes waiting receivers. It returns the number of
// receivers subscribed at the time of the call.
func (h *Hub[T]) Publish(v T) int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	h.ring[h.head%uint64(len(h.ring))] = v
	h.head++
	close(h.wake)
	h.wake = make(chan struct{})
	h.mu.Unlock()

	return int(h.receivers.Load())
}

func (h *Hub[T]) Receivers() int {
	return int(h.receivers.Load())
}

// Close wakes every receiver. Messages still buffered are delivered before
// Recv reports ErrClosed.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.wake)
}

// Subscribe returns a receiver that observes messages published from now on.
func (h *Hub[T]) Subscribe() *Receiver[T] {
	h.mu.RLock()
	next := h.head
	h.mu.RUnlock()

	h.receivers.Add(1)
	return &Receiver[T]{hub: h, next: next}
}

// Receiver is a single cursor into the hub. It is not safe for concurrent use.
type Receiver[T any] struct {
	hub  *Hub[T]
	next uint64
	once sync.Once
}

// Recv blocks until a message is available, ctx is done, or the hub closes.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	h := r.hub

	for {
		h.mu.RLock()
		if r.next < h.head {
			size := uint64(len(h.ring))
			var oldest uint64
			if h.head > size {
				oldest = h.head - size
			}
			if r.next < oldest {
				skipped := oldest - r.next
				r.next = oldest
				h.mu.RUnlock()
				return zero, &LaggedError{Skipped: skipped}
			}
			v := h.ring[r.next%size]
			r.next++
			h.mu.RUnlock()
			return v, nil
		}
		if h.closed {
			h.mu.RUnlock()
			return zero, ErrClosed
		}
		wake := h.wake
		h.mu.RUnlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wake:
		}
	}
}

// Close detaches the receiver from the hub's receiver count.
func (r *Receiver[T]) Close() {
	r.once.Do(func() {
		r.hub.receivers.Add(-1)
	})
}
