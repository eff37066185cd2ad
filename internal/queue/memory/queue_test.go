package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

func job(id int64) crawler.Job {
	return crawler.Job{RunID: "run-1", Location: crawler.Location{ID: id, SeedURL: "https://inkhouse.example"}}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.Job, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), job(1)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Location.ID != 1 {
			t.Fatalf("expected location 1, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), job(1)); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, job(2)); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsBufferedJobsFirst(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), job(1)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	got, err := q.Dequeue(context.Background())
	if err != nil || got.Location.ID != 1 {
		t.Fatalf("expected buffered job after close, got %+v err=%v", got, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, crawler.ErrQueueClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	if err := q.Enqueue(context.Background(), job(2)); !errors.Is(err, crawler.ErrQueueClosed) {
		t.Fatalf("expected enqueue on closed queue to fail, got %v", err)
	}
	// Closing twice should be safe.
	if err := q.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestQueueDrain(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for i := int64(1); i <= 3; i++ {
		if err := q.Enqueue(context.Background(), job(i)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 buffered jobs, got %d", q.Len())
	}
	_ = q.Close()
	drained, err := q.Drain(context.Background())
	if err != nil || len(drained) != 3 {
		t.Fatalf("expected 3 drained jobs, got %d (err=%v)", len(drained), err)
	}
	if again, _ := q.Drain(context.Background()); len(again) != 0 {
		t.Fatal("expected empty drain after first drain")
	}
}

func TestQueueConcurrentConsumersSeeEachJobOnce(t *testing.T) {
	t.Parallel()

	const jobs = 50
	q := NewQueue(jobs)
	for i := int64(0); i < jobs; i++ {
		if err := q.Enqueue(context.Background(), job(i)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	_ = q.Close()

	var mu sync.Mutex
	seen := make(map[int64]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := q.Dequeue(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[j.Location.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Fatalf("expected %d distinct jobs, got %d", jobs, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %d dequeued %d times", id, n)
		}
	}
}
