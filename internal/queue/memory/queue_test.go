package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan archiver.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	require.NoError(t, q.Enqueue(context.Background(), archiver.QueueItem{URL: "example.com/a", Line: 1}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		assert.Equal(t, "example.com/a", got.URL)
		assert.Equal(t, 1, got.Line)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueuePreservesOrderAndDrainsAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	ctx := context.Background()
	for i, u := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, archiver.QueueItem{URL: u, Line: i + 1}))
	}
	assert.Equal(t, 3, q.Len())
	q.Close()
	q.Close()

	for _, want := range []string{"a", "b", "c"} {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, item.URL)
	}
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	assert.EqualError(t, err, "dequeue canceled: context canceled")

	qEnqueue := NewQueue(1)
	require.NoError(t, qEnqueue.Enqueue(context.Background(), archiver.QueueItem{URL: "primed"}))
	err = qEnqueue.Enqueue(ctx, archiver.QueueItem{URL: "blocked"})
	assert.EqualError(t, err, "enqueue canceled: context canceled")
}

func TestQueueCanceledDequeueIgnoresBufferedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), archiver.QueueItem{URL: "ready"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Len())
}
