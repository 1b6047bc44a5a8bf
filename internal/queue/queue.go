// Package queue is the bounded hand-off between admission and the worker pool.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrFull   = errors.New("queue is full")
	ErrClosed = errors.New("queue is closed")
)

// Queue is a bounded FIFO of job IDs. Each enqueued ID is delivered to exactly one Dequeue caller.
type Queue struct {
	mu      sync.Mutex
	closed  bool
	items   chan uuid.UUID
	pending map[uuid.UUID]struct{}
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		items:   make(chan uuid.UUID, capacity),
		pending: make(map[uuid.UUID]struct{}, capacity),
	}
}

// Enqueue adds id without blocking.
func (q *Queue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.items <- id:
		q.pending[id] = struct{}{}
		return nil
	default:
		return ErrFull
	}
}

// Dequeue blocks until an ID is available, ctx is done, or the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case id, ok := <-q.items:
		if !ok {
			return uuid.Nil, ErrClosed
		}
		q.mu.Lock()
		delete(q.pending, id)
		q.mu.Unlock()
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Close stops further Enqueue calls. Items already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

// Contains reports whether id is waiting in the queue. An ID handed to a worker is no longer contained.
func (q *Queue) Contains(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Cap() int { return cap(q.items) }
