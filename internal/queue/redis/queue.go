// Package redis provides a Redis-list backed work queue so several crawler
// processes can share the jobs claimed by one dispatcher.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

const defaultPollInterval = time.Second

// Config controls the list key and blocking poll interval.
type Config struct {
	Key          string
	PollInterval time.Duration
}

// Queue pushes jobs with LPUSH and pops them with BRPOP, giving FIFO order.
type Queue struct {
	client *goredis.Client
	key    string
	poll   time.Duration
	closed atomic.Bool
}

// New wraps an existing client.
func New(client *goredis.Client, cfg Config) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis queue: client is required")
	}
	if cfg.Key == "" {
		return nil, errors.New("redis queue: key is required")
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Queue{client: client, key: cfg.Key, poll: poll}, nil
}

// Enqueue appends a job to the list.
func (q *Queue) Enqueue(ctx context.Context, job crawler.Job) error {
	if q.closed.Load() {
		return fmt.Errorf("enqueue: %w", crawler.ErrQueueClosed)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks until a job arrives or the context ends. After Close it
// drains remaining entries without blocking and then reports
// crawler.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return crawler.Job{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		if q.closed.Load() {
			raw, err := q.client.RPop(ctx, q.key).Result()
			if errors.Is(err, goredis.Nil) {
				return crawler.Job{}, crawler.ErrQueueClosed
			}
			if err != nil {
				return crawler.Job{}, fmt.Errorf("dequeue job: %w", err)
			}
			return decode(raw)
		}
		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return crawler.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			return crawler.Job{}, fmt.Errorf("dequeue job: %w", err)
		}
		// BRPOP replies with [key, value].
		if len(res) != 2 {
			return crawler.Job{}, fmt.Errorf("dequeue job: unexpected reply length %d", len(res))
		}
		return decode(res[1])
	}
}

// Close marks the queue as complete for this process. Entries already in
// Redis stay available until drained.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}

// Drain pops every remaining entry without blocking.
func (q *Queue) Drain(ctx context.Context) ([]crawler.Job, error) {
	var out []crawler.Job
	for {
		raw, err := q.client.RPop(ctx, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("drain queue: %w", err)
		}
		job, err := decode(raw)
		if err != nil {
			return out, err
		}
		out = append(out, job)
	}
}

func decode(raw string) (crawler.Job, error) {
	var job crawler.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return crawler.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
