// Package broadcast implements a bounded, multi-reader fan-out channel.
//
// Every value sent is seen by every receiver subscribed at the time of the
// send, in send order. Sending never blocks: the channel keeps only the last
// capacity values, and a receiver that falls further behind than that is told
// how many values it skipped and resumes at the oldest value still retained.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Receiver.Recv once the channel is closed and the
// receiver has drained every retained value, or after the receiver itself was
// closed.
var ErrClosed = errors.New("broadcast: channel closed")

// LaggedError reports that a receiver missed Skipped values because it fell
// more than the channel capacity behind the sender. The receiver is still
// usable.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: receiver lagged by %d values", e.Skipped)
}

// Channel is a fan-out channel for values of type T.
type Channel[T any] struct {
	mu        sync.Mutex
	ring      []T
	sent      uint64 // total number of values ever sent
	wake      chan struct{}
	closed    bool
	receivers int
}

// New creates a channel that retains up to capacity values for slow
// receivers. Capacity below one is raised to one.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel[T]{
		ring: make([]T, capacity),
		wake: make(chan struct{}),
	}
}

// Capacity returns the number of values retained for lagging receivers.
func (c *Channel[T]) Capacity() int {
	return len(c.ring)
}

// Send publishes v to all current receivers and returns how many there were.
// It never blocks. Sending on a closed channel is a no-op returning zero.
func (c *Channel[T]) Send(v T) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}
	c.ring[c.sent%uint64(len(c.ring))] = v
	c.sent++
	close(c.wake)
	c.wake = make(chan struct{})
	return c.receivers
}

// Subscribe returns a receiver that observes every value sent from now on.
func (c *Channel[T]) Subscribe() *Receiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Receiver[T]{channel: c, next: c.sent}
	if c.closed {
		r.detached = true
		return r
	}
	c.receivers++
	return r
}

// ReceiverCount returns the number of attached receivers.
func (c *Channel[T]) ReceiverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers
}

// Close stops the channel. Receivers drain what is still retained and then
// get ErrClosed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.wake)
}

// oldest returns the sequence number of the oldest retained value.
func (c *Channel[T]) oldest() uint64 {
	capacity := uint64(len(c.ring))
	if c.sent <= capacity {
		return 0
	}
	return c.sent - capacity
}

// Receiver is one reader of a Channel. A Receiver must not be used from more
// than one goroutine at a time.
type Receiver[T any] struct {
	channel  *Channel[T]
	next     uint64
	detached bool
}

// Recv waits for the next value. It returns a *LaggedError if values were
// overwritten before this receiver read them, ErrClosed when nothing more will
// arrive, or the context error if ctx ends first.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	c := r.channel
	for {
		c.mu.Lock()
		if r.detached {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		if oldest := c.oldest(); r.next < oldest {
			skipped := oldest - r.next
			r.next = oldest
			c.mu.Unlock()
			return zero, &LaggedError{Skipped: skipped}
		}
		if r.next < c.sent {
			v := c.ring[r.next%uint64(len(c.ring))]
			r.next++
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close detaches the receiver from its channel. It is safe to call more than
// once.
func (r *Receiver[T]) Close() {
	c := r.channel
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.detached {
		return
	}
	r.detached = true
	c.receivers--
}
