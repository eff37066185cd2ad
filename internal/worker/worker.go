// Package worker runs the per-location crawl state machine: fetch a page,
// let the decision oracle pick the next move, and either follow a same-host
// link, extract artists, or stop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
	"github.com/JakeFAU/artist-crawler/internal/metrics"
	"github.com/JakeFAU/artist-crawler/internal/progress"
	"github.com/JakeFAU/artist-crawler/internal/telemetry"
)

const (
	statusDone   = crawler.StatusDone
	statusFailed = crawler.StatusFailed

	defaultMaxPageVisits = 5
	publishTimeout       = 10 * time.Second
)

// Page formats handed to the oracles.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// Store is the persistence surface a worker needs.
type Store interface {
	SetLocationStatus(ctx context.Context, locationID int64, status crawler.LocationStatus) error
	ReleaseLocations(ctx context.Context, locationIDs []int64) (int, error)
	crawler.ArtistStore
	crawler.AuditLog
}

// Archiver stores raw pages. It is optional.
type Archiver interface {
	Save(ctx context.Context, locationID int64, body []byte) (string, error)
}

// Config controls crawl limits and prompt shaping.
type Config struct {
	MaxPageVisits int
	PageFormat    string
	MaxPageChars  int
	Topic         string
}

// Dependencies are the collaborators shared by every crawl. Store, Fetcher,
// Decider and Extractor are required.
type Dependencies struct {
	Store     Store
	Fetcher   crawler.Fetcher
	Decider   crawler.DecisionOracle
	Extractor crawler.ExtractionOracle
	Clock     crawler.Clock
	Archiver  Archiver
	Publisher crawler.Publisher
	Progress  progress.Emitter
	Stats     *Stats
	Tracer    trace.Tracer
}

// Outcome summarizes one finished location.
type Outcome struct {
	LocationID   int64
	Status       crawler.LocationStatus
	Reason       string
	PagesVisited int
	ArtistsAdded int
	Err          error
}

// Worker executes crawls. A single Worker is safe to share between
// goroutines; all per-location state lives on the stack of Crawl.
type Worker struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger
}

// New validates deps and applies defaults.
func New(deps Dependencies, cfg Config, logger *zap.Logger) (*Worker, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("worker store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("worker fetcher is required")
	case deps.Decider == nil:
		return nil, errors.New("worker decision oracle is required")
	case deps.Extractor == nil:
		return nil, errors.New("worker extraction oracle is required")
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer()
	}
	if cfg.MaxPageVisits <= 0 {
		cfg.MaxPageVisits = defaultMaxPageVisits
	}
	if cfg.PageFormat == "" {
		cfg.PageFormat = FormatHTML
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}, nil
}

// Run pops jobs and crawls them one at a time until the queue is closed and
// drained or ctx is canceled. A job dequeued after cancellation is released
// back to unclaimed instead of being crawled.
func (w *Worker) Run(ctx context.Context, workerID int, queue crawler.Queue) error {
	logger := w.logger.With(zap.Int("worker_id", workerID))
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %d dequeue: %w", workerID, err)
		}
		if ctx.Err() != nil {
			w.release(ctx, logger, job)
			return nil
		}
		logger.Debug("dequeued location",
			zap.String("run_id", job.RunID),
			zap.Int64("location_id", job.Location.ID),
		)
		w.Crawl(ctx, job)
	}
}

func (w *Worker) release(ctx context.Context, logger *zap.Logger, job crawler.Job) {
	n, err := w.deps.Store.ReleaseLocations(context.WithoutCancel(ctx), []int64{job.Location.ID})
	if err != nil {
		logger.Error("failed to release location",
			zap.Int64("location_id", job.Location.ID),
			zap.Error(err),
		)
		return
	}
	w.deps.Stats.AddReleased(n)
}

// Crawl runs the state machine for one location and always leaves it in a
// terminal status, including when ctx is canceled or the crawl panics.
func (w *Worker) Crawl(ctx context.Context, job crawler.Job) (out Outcome) {
	loc := job.Location
	start := time.Now()
	logger := w.logger.With(
		zap.String("run_id", job.RunID),
		zap.Int64("location_id", loc.ID),
	)

	ctx, span := telemetry.StartLocationSpan(ctx, w.deps.Tracer, job.RunID, loc.ID, loc.SeedURL)
	w.emit(progress.Event{RunID: job.RunID, LocationID: loc.ID, Stage: progress.StageLocationStart, URL: loc.SeedURL})

	s := &session{w: w, job: job, logger: logger, out: Outcome{LocationID: loc.ID}}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("crawl panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.fail(ctx, "panic", fmt.Sprint(r), fmt.Errorf("crawl panic: %v", r))
		}
		out = s.out
		w.finalize(ctx, job, out, time.Since(start), logger)
		telemetry.EndLocationSpan(span, out.Status.String(), out.PagesVisited, out.ArtistsAdded, out.Err)
	}()

	s.run(ctx)
	return s.out
}

func (w *Worker) finalize(ctx context.Context, job crawler.Job, out Outcome, elapsed time.Duration, logger *zap.Logger) {
	detached := context.WithoutCancel(ctx)

	if err := w.deps.Store.SetLocationStatus(detached, out.LocationID, out.Status); err != nil {
		logger.Error("failed to set location status",
			zap.String("status", out.Status.String()),
			zap.Error(err),
		)
	}
	w.deps.Stats.Record(out)

	stage := progress.StageLocationDone
	if out.Status == statusFailed {
		stage = progress.StageLocationFailed
	}
	w.emit(progress.Event{
		RunID:      job.RunID,
		LocationID: out.LocationID,
		Stage:      stage,
		URL:        job.Location.SeedURL,
		Artists:    out.ArtistsAdded,
		Dur:        elapsed,
		Note:       out.Reason,
	})

	w.publish(detached, job, out, logger)

	fields := []zap.Field{
		zap.String("status", out.Status.String()),
		zap.String("reason", out.Reason),
		zap.Int("pages_visited", out.PagesVisited),
		zap.Int("artists_added", out.ArtistsAdded),
		zap.Duration("elapsed", elapsed),
	}
	if out.Err != nil {
		logger.Warn("location failed", append(fields, zap.Error(out.Err))...)
		return
	}
	logger.Info("location finished", fields...)
}

func (w *Worker) publish(ctx context.Context, job crawler.Job, out Outcome, logger *zap.Logger) {
	if w.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	evt := crawler.LocationCompleted{
		RunID:        job.RunID,
		LocationID:   out.LocationID,
		Status:       out.Status.String(),
		Reason:       out.Reason,
		PagesVisited: out.PagesVisited,
		ArtistsAdded: out.ArtistsAdded,
		CompletedAt:  w.deps.Clock.Now(),
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, evt); err != nil {
		logger.Warn("failed to publish completion", zap.Error(err))
	}
}

func (w *Worker) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = w.deps.Clock.Now()
	}
	w.deps.Progress.Emit(evt)
}

// preparePage turns a fetched body into the text shown to the oracles.
func (w *Worker) preparePage(body []byte, anchorHost string) (string, error) {
	cleaned, err := crawler.Preprocess(body)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(w.cfg.PageFormat, FormatMarkdown) {
		md, err := crawler.ToMarkdown(cleaned, anchorHost)
		if err != nil {
			return "", err
		}
		cleaned = md
	}
	return crawler.Truncate(cleaned, w.cfg.MaxPageChars), nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
