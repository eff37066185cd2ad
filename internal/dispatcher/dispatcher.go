// Package dispatcher runs one crawl pass: it claims a batch of locations,
// fans them out to a pool of workers over a queue, and hands back anything
// left unprocessed when the run is cut short.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
	"github.com/JakeFAU/artist-crawler/internal/worker"
)

const (
	defaultWorkers  = 12
	defaultMaxClaim = 100
)

// Queue is a crawler.Queue that can hand back jobs nobody dequeued.
type Queue interface {
	crawler.Queue
	Drain(ctx context.Context) ([]crawler.Job, error)
}

// QueueFactory builds the queue for one run. capacity is the number of jobs
// that will be enqueued before workers start.
type QueueFactory func(ctx context.Context, runID string, capacity int) (Queue, error)

// Runner processes jobs from a queue until it is closed and drained.
type Runner interface {
	Run(ctx context.Context, workerID int, queue crawler.Queue) error
}

// Config controls pool size and claim filters.
type Config struct {
	Workers      int
	MaxClaim     int
	ExcludeHosts []string
}

// Summary reports the totals of a single run.
type Summary struct {
	RunID        string        `json:"run_id"`
	Claimed      int           `json:"claimed"`
	Processed    int64         `json:"processed"`
	Done         int64         `json:"done"`
	Failed       int64         `json:"failed"`
	ArtistsAdded int64         `json:"artists_added"`
	Released     int64         `json:"released"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Dispatcher claims work and fans it out to workers.
type Dispatcher struct {
	store    crawler.LocationStore
	ids      crawler.IDGenerator
	newQueue QueueFactory
	runner   Runner
	stats    *worker.Stats
	cfg      Config
	logger   *zap.Logger
}

// New creates a Dispatcher. stats must be the same counters the runner
// records into.
func New(
	store crawler.LocationStore,
	ids crawler.IDGenerator,
	newQueue QueueFactory,
	runner Runner,
	cfg Config,
	stats *worker.Stats,
	logger *zap.Logger,
) (*Dispatcher, error) {
	switch {
	case store == nil:
		return nil, errors.New("dispatcher store is required")
	case ids == nil:
		return nil, errors.New("dispatcher id generator is required")
	case newQueue == nil:
		return nil, errors.New("dispatcher queue factory is required")
	case runner == nil:
		return nil, errors.New("dispatcher runner is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxClaim <= 0 {
		cfg.MaxClaim = defaultMaxClaim
	}
	if stats == nil {
		stats = worker.NewStats()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:    store,
		ids:      ids,
		newQueue: newQueue,
		runner:   runner,
		stats:    stats,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run performs one pass and blocks until every worker has returned. When ctx
// is canceled, in-flight locations finish their current step and locations
// still queued are released back to unclaimed.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	before := d.stats.Snapshot()

	runID, err := d.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := Summary{RunID: runID}
	logger := d.logger.With(zap.String("run_id", runID))

	locations, err := d.store.ClaimLocations(ctx, d.cfg.MaxClaim, d.cfg.ExcludeHosts)
	if err != nil {
		return summary, fmt.Errorf("claim locations: %w", err)
	}
	summary.Claimed = len(locations)
	if len(locations) == 0 {
		logger.Info("no locations to crawl")
		summary.Elapsed = time.Since(start)
		return summary, nil
	}
	logger.Info("claimed locations", zap.Int("count", len(locations)), zap.Int("workers", d.cfg.Workers))

	queue, err := d.newQueue(ctx, runID, len(locations))
	if err != nil {
		d.release(ctx, logger, locations)
		return d.finish(summary, before, start), fmt.Errorf("create queue: %w", err)
	}

	for i, loc := range locations {
		if err := queue.Enqueue(ctx, crawler.Job{RunID: runID, Location: loc}); err != nil {
			d.release(ctx, logger, locations[i:])
			break
		}
	}
	if err := queue.Close(); err != nil {
		logger.Warn("failed to close queue", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= d.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error {
			return d.runner.Run(gctx, workerID, queue)
		})
	}
	runErr := g.Wait()

	leftover, err := queue.Drain(context.WithoutCancel(ctx))
	if err != nil {
		logger.Error("failed to drain queue", zap.Error(err))
	}
	if len(leftover) > 0 {
		pending := make([]crawler.Location, 0, len(leftover))
		for _, job := range leftover {
			pending = append(pending, job.Location)
		}
		d.release(ctx, logger, pending)
	}

	summary = d.finish(summary, before, start)
	logger.Info("run finished",
		zap.Int("claimed", summary.Claimed),
		zap.Int64("done", summary.Done),
		zap.Int64("failed", summary.Failed),
		zap.Int64("artists_added", summary.ArtistsAdded),
		zap.Int64("released", summary.Released),
		zap.Duration("elapsed", summary.Elapsed),
	)
	if runErr != nil {
		return summary, fmt.Errorf("worker pool: %w", runErr)
	}
	return summary, nil
}

func (d *Dispatcher) release(ctx context.Context, logger *zap.Logger, locations []crawler.Location) {
	if len(locations) == 0 {
		return
	}
	ids := make([]int64, 0, len(locations))
	for _, loc := range locations {
		ids = append(ids, loc.ID)
	}
	n, err := d.store.ReleaseLocations(context.WithoutCancel(ctx), ids)
	if err != nil {
		logger.Error("failed to release locations", zap.Int("count", len(ids)), zap.Error(err))
		return
	}
	d.stats.AddReleased(n)
	logger.Info("released locations", zap.Int("count", n))
}

func (d *Dispatcher) finish(summary Summary, before worker.Snapshot, start time.Time) Summary {
	after := d.stats.Snapshot()
	summary.Processed = after.Processed - before.Processed
	summary.Done = after.Done - before.Done
	summary.Failed = after.Failed - before.Failed
	summary.ArtistsAdded = after.ArtistsAdded - before.ArtistsAdded
	summary.Released = after.Released - before.Released
	summary.Elapsed = time.Since(start)
	return summary
}
