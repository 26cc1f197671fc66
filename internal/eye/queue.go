package eye

import (
	"context"
	"sync"
)

// Queue is an in-process channel backed by a buffered Go channel.
type Queue struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// NewQueue creates a queue that holds up to capacity undelivered messages.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// Messages is the receiving end.
func (q *Queue) Messages() <-chan Message {
	return q.ch
}

// Send enqueues msg without blocking.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Close closes the receiving end. Further sends fail with ErrClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
