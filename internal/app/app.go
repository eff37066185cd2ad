// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the crawl commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/api"
	"github.com/JakeFAU/artist-crawler/internal/archive"
	"github.com/JakeFAU/artist-crawler/internal/clock/system"
	"github.com/JakeFAU/artist-crawler/internal/config"
	"github.com/JakeFAU/artist-crawler/internal/crawler"
	"github.com/JakeFAU/artist-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/artist-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/artist-crawler/internal/hash/sha256"
	"github.com/JakeFAU/artist-crawler/internal/id/uuid"
	"github.com/JakeFAU/artist-crawler/internal/metrics"
	"github.com/JakeFAU/artist-crawler/internal/oracle"
	"github.com/JakeFAU/artist-crawler/internal/oracle/anthropic"
	"github.com/JakeFAU/artist-crawler/internal/oracle/gemini"
	"github.com/JakeFAU/artist-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/artist-crawler/internal/progress"
	"github.com/JakeFAU/artist-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/artist-crawler/internal/publisher/pubsub"
	publishermemory "github.com/JakeFAU/artist-crawler/internal/publisher/memory"
	queuememory "github.com/JakeFAU/artist-crawler/internal/queue/memory"
	queueredis "github.com/JakeFAU/artist-crawler/internal/queue/redis"
	"github.com/JakeFAU/artist-crawler/internal/storage/gcs"
	"github.com/JakeFAU/artist-crawler/internal/storage/local"
	storagememory "github.com/JakeFAU/artist-crawler/internal/storage/memory"
	"github.com/JakeFAU/artist-crawler/internal/storage/postgres"
	"github.com/JakeFAU/artist-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/artist-crawler/internal/telemetry"
	"github.com/JakeFAU/artist-crawler/internal/worker"
)

const (
	serviceName     = "artist-crawler"
	shutdownTimeout = 10 * time.Second
)

// Overrides replaces externally backed collaborators. Tests use it to run
// the full wiring without network access.
type Overrides struct {
	Completer oracle.Completer
	Fetcher   crawler.Fetcher
	Store     crawler.Store
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      crawler.Store
	stats      *worker.Stats
	runs       *api.Runs
	hub        *progress.Hub
	dispatcher *dispatcher.Dispatcher
	server     *api.Server

	closers []func(context.Context) error
}

// Store exposes the configured store.
func (a *App) Store() crawler.Store { return a.store }

// Stats exposes cumulative worker counters.
func (a *App) Stats() *worker.Stats { return a.stats }

// Runs exposes the recorded run summaries.
func (a *App) Runs() *api.Runs { return a.runs }

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// OpenStore builds only the store. The migrate and seed commands use it
// without wiring the rest of the crawler.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (crawler.Store, error) {
	switch cfg.Provider {
	case config.DatabasePostgres:
		logger.Info("connecting to postgres")
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.DatabaseSQLite:
		logger.Info("opening sqlite store", zap.String("path", cfg.SQLite.Path))
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLite.Path, BusyTimeout: cfg.SQLite.BusyTimeout})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DatabaseMemory:
		logger.Info("using in-memory store; results are discarded on exit")
		return storagememory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database provider: %s", cfg.Provider)
	}
}

// New wires every service described by cfg. It fails fast when any
// critical service cannot be initialized and releases whatever it already
// opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, over Overrides) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		stats:  worker.NewStats(),
		runs:   &api.Runs{},
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	metrics.Init()
	logger.Info("initializing application services")

	store := over.Store
	if store == nil {
		store, err = OpenStore(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	}
	a.store = store

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, serviceName, sdktrace.WithSampler(sdktrace.AlwaysSample()))
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, tp.Shutdown)
	}

	completer := over.Completer
	if completer == nil {
		completer, err = newCompleter(ctx, cfg.Oracle)
		if err != nil {
			return nil, err
		}
	}
	orc := oracle.New(completer, store, oracle.Config{
		Timeout:             cfg.Oracle.Timeout,
		DecisionMaxTokens:   cfg.Oracle.DecisionMaxTokens,
		ExtractionMaxTokens: cfg.Oracle.ExtractionMaxTokens,
	}, logger.Named("oracle"))

	fetcher := over.Fetcher
	if fetcher == nil {
		limiter := ratelimit.New(ratelimit.Config{
			PerHostRPS:   cfg.Crawler.PerHostRPS,
			PerHostBurst: cfg.Crawler.PerHostBurst,
		})
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.Crawler.FetchTimeout,
			MaxBodyBytes:  cfg.Crawler.MaxBodyBytes,
		}, limiter)
	}

	archiver, err := a.newArchiver(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.newPublisher(ctx)
	if err != nil {
		return nil, err
	}

	progressSinks := []progress.Sink{}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Warn("prometheus progress sink unavailable", zap.Error(err))
	} else {
		progressSinks = append(progressSinks, promSink)
	}
	if cfg.Progress.LogEvents {
		progressSinks = append(progressSinks, sinks.NewLogSink(logger.Named("progress")))
	}
	a.hub = progress.NewHub(progress.Config{BufferSize: cfg.Progress.BufferSize, Logger: logger.Named("progress")}, progressSinks...)
	a.closers = append(a.closers, a.hub.Close)

	deps := worker.Dependencies{
		Store:     store,
		Fetcher:   fetcher,
		Decider:   orc,
		Extractor: orc,
		Clock:     system.New(),
		Publisher: publisher,
		Progress:  a.hub,
		Stats:     a.stats,
		Tracer:    telemetry.Tracer(),
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	w, err := worker.New(deps, worker.Config{
		MaxPageVisits: cfg.Crawler.MaxPageVisits,
		PageFormat:    cfg.Oracle.PageFormat,
		MaxPageChars:  cfg.Oracle.MaxPageChars,
		Topic:         cfg.Publisher.PubSub.TopicID,
	}, logger.Named("worker"))
	if err != nil {
		return nil, fmt.Errorf("build worker: %w", err)
	}

	newQueue, err := a.newQueueFactory()
	if err != nil {
		return nil, err
	}
	a.dispatcher, err = dispatcher.New(store, uuid.New(), newQueue, w, dispatcher.Config{
		Workers:      cfg.Crawler.Workers,
		MaxClaim:     cfg.Crawler.MaxClaim,
		ExcludeHosts: cfg.Crawler.ExcludeHosts,
	}, a.stats, logger.Named("dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	a.server = api.NewServer(store, a.stats, a.runs, logger.Named("api"))
	logger.Info("application services initialized")
	return a, nil
}

func newCompleter(ctx context.Context, cfg config.OracleConfig) (oracle.Completer, error) {
	switch cfg.Provider {
	case config.OracleAnthropic:
		c, err := anthropic.New(anthropic.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("init anthropic oracle: %w", err)
		}
		return c, nil
	case config.OracleGemini:
		c, err := gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("init gemini oracle: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}
}

func (a *App) newArchiver(ctx context.Context) (*archive.Archiver, error) {
	var blobs crawler.BlobStore
	switch a.cfg.Archive.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ArchiveLocal:
		bs, err := local.New(local.Config{BaseDir: a.cfg.Archive.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		blobs = bs
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		bs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		blobs = bs
	case config.ArchiveMemory:
		blobs = storagememory.NewBlobStore()
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
	a.logger.Info("archiving fetched pages", zap.String("provider", a.cfg.Archive.Provider))
	arch, err := archive.New(blobs, sha256.New(), a.cfg.Archive.Prefix)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	return arch, nil
}

func (a *App) newPublisher(ctx context.Context) (crawler.Publisher, error) {
	switch a.cfg.Publisher.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.PublisherPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Publisher.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		pub, err := pubsubpublisher.New(client, a.cfg.Publisher.PubSub.TopicID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		a.logger.Info("publishing completions to pubsub", zap.String("topic", a.cfg.Publisher.PubSub.TopicID))
		return pub, nil
	case config.PublisherMemory:
		return publishermemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", a.cfg.Publisher.Provider)
	}
}

func (a *App) newQueueFactory() (dispatcher.QueueFactory, error) {
	switch a.cfg.Queue.Provider {
	case config.QueueMemory, "":
		return func(_ context.Context, _ string, capacity int) (dispatcher.Queue, error) {
			return queuememory.NewQueue(capacity), nil
		}, nil
	case config.QueueRedis:
		rc := a.cfg.Queue.Redis
		client := goredis.NewClient(&goredis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return func(_ context.Context, runID string, _ int) (dispatcher.Queue, error) {
			return queueredis.New(client, queueredis.Config{Key: rc.Key + ":" + runID})
		}, nil
	default:
		return nil, fmt.Errorf("unknown queue provider: %s", a.cfg.Queue.Provider)
	}
}

// RunOnce performs a single crawl pass and records its summary.
func (a *App) RunOnce(ctx context.Context) (dispatcher.Summary, error) {
	summary, err := a.dispatcher.Run(ctx)
	a.runs.Record(summary)
	return summary, err
}

// Serve runs the ops HTTP server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting ops server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown ops server: %w", err)
		}
		return nil
	}
}

// Close shuts down services in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}
