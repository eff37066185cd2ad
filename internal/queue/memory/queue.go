// Package memory provides an in-process work queue shared by the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

// Queue is a bounded in-memory queue with context-aware operations. Any
// number of workers may Dequeue concurrently.
type Queue struct {
	ch      chan crawler.Job
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.Job, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, job crawler.Job) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return fmt.Errorf("enqueue: %w", crawler.ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation. Once the queue
// is closed and empty it returns crawler.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Job, error) {
	select {
	case <-ctx.Done():
		return crawler.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return crawler.Job{}, crawler.ErrQueueClosed
		}
		return job, nil
	}
}

// Close signals that no more jobs will be enqueued. Buffered jobs remain
// available to Dequeue.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}

// Drain removes and returns every job still buffered without blocking.
func (q *Queue) Drain(context.Context) ([]crawler.Job, error) {
	var out []crawler.Job
	for {
		select {
		case job, ok := <-q.ch:
			if !ok {
				return out, nil
			}
			out = append(out, job)
		default:
			return out, nil
		}
	}
}

// Len reports how many jobs are buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}
