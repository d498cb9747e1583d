// Package broadcast implements a bounded multi-subscriber channel. Every
// receiver observes every value published after it subscribed, in publish
// order. A receiver that falls more than the channel capacity behind is told
// how many values it missed instead of silently skipping them.
package broadcast

import (
	"context"
	"sync"
)

type Kind int

const (
	Item Kind = iota
	Lagged
	Closed
)

func (k Kind) String() string {
	switch k {
	case Item:
		return "item"
	case Lagged:
		return "lagged"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single receive.
type Result[T any] struct {
	Kind   Kind
	Value  T
	Missed uint64
}

type Channel[T any] struct {
	mu        sync.Mutex
	buf       []T
	head      uint64
	receivers int
	closed    bool
	notify    chan struct{}
}

// New returns a channel retaining at most capacity unread values per
// receiver. capacity must be positive.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("broadcast: capacity must be positive")
	}

	return &Channel[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Publish delivers v to every current receiver and returns how many there
// were. With no receivers, or once the channel is closed, it is a no-op
// returning 0.
func (c *Channel[T]) Publish(v T) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.receivers == 0 {
		return 0
	}

	c.buf[c.head%uint64(len(c.buf))] = v
	c.head++

	close(c.notify)
	c.notify = make(chan struct{})

	return c.receivers
}

// Subscribe returns a receiver that starts at the next published value.
func (c *Channel[T]) Subscribe() *Receiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Receiver[T]{ch: c, next: c.head}
	if !c.closed {
		c.receivers++
	} else {
		r.done = true
	}

	return r
}

// Receivers returns the number of live receivers.
func (c *Channel[T]) Receivers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers
}

// Close marks the channel closed. Receivers drain whatever they have not yet
// read and then observe Closed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.notify)
}

type Receiver[T any] struct {
	ch   *Channel[T]
	next uint64
	done bool
}

// Recv blocks until a value is available, the receiver has lagged, the
// channel is closed, or ctx is done. Only the last case returns an error.
func (r *Receiver[T]) Recv(ctx context.Context) (Result[T], error) {
	c := r.ch
	for {
		c.mu.Lock()
		if r.next < c.head {
			size := uint64(len(c.buf))
			var oldest uint64
			if c.head > size {
				oldest = c.head - size
			}

			if r.next < oldest {
				missed := oldest - r.next
				r.next = oldest
				c.mu.Unlock()
				return Result[T]{Kind: Lagged, Missed: missed}, nil
			}

			v := c.buf[r.next%size]
			r.next++
			c.mu.Unlock()
			return Result[T]{Kind: Item, Value: v}, nil
		}

		if c.closed {
			c.mu.Unlock()
			return Result[T]{Kind: Closed}, nil
		}

		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Result[T]{}, ctx.Err()
		}
	}
}

// Close unsubscribes the receiver. It is safe to call more than once.
func (r *Receiver[T]) Close() {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.done {
		return
	}

	r.done = true
	if !c.closed {
		c.receivers--
	}
}
