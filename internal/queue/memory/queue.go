// Package memory provides the bounded queue between ingestion and the processing worker.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
	"github.com/JakeFAU/wayback-archiver/internal/metrics"
)

// ErrQueueClosed is returned by Dequeue once the queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. A single producer owns
// Enqueue and Close.
type Queue struct {
	ch      chan archiver.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan archiver.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue, blocking while it is full, or returns if the context
// ends.
func (q *Queue) Enqueue(ctx context.Context, item archiver.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		metrics.SetQueueDepth(len(q.ch))
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (archiver.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return archiver.QueueItem{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return archiver.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return archiver.QueueItem{}, ErrQueueClosed
		}
		metrics.SetQueueDepth(len(q.ch))
		return item, nil
	}
}

// Len returns the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close signals that no more items will be enqueued. Buffered items remain available.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
