package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
	pubmem "github.com/JakeFAU/artist-crawler/internal/publisher/memory"
	"github.com/JakeFAU/artist-crawler/internal/progress"
	queuemem "github.com/JakeFAU/artist-crawler/internal/queue/memory"
	"github.com/JakeFAU/artist-crawler/internal/storage/memory"
)

const page = `<html><head><title>x</title></head><body><h1>Ink House</h1><a href="/artists">Artists</a></body></html>`

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]crawler.FetchResponse
	errs      map[string]error
	requested []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, req.URL)
	if err, ok := f.errs[req.URL]; ok {
		return crawler.FetchResponse{}, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(page)}, nil
}

func (f *fakeFetcher) Requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

type scriptedDecider struct {
	mu      sync.Mutex
	actions []crawler.Action
	err     error
	inputs  []crawler.DecisionInput
	// fallback is returned once actions are exhausted.
	fallback crawler.Action
}

func (d *scriptedDecider) Decide(_ context.Context, in crawler.DecisionInput) (crawler.Action, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs = append(d.inputs, in)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.actions) == 0 {
		if d.fallback != nil {
			return d.fallback, nil
		}
		return crawler.Done{}, nil
	}
	next := d.actions[0]
	d.actions = d.actions[1:]
	return next, nil
}

type fakeExtractor struct {
	candidates []crawler.Candidate
	err        error
	inputs     []crawler.ExtractionInput
	panicWith  any
}

func (e *fakeExtractor) Extract(_ context.Context, in crawler.ExtractionInput) ([]crawler.Candidate, error) {
	if e.panicWith != nil {
		panic(e.panicWith)
	}
	e.inputs = append(e.inputs, in)
	return e.candidates, e.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type recordingArchiver struct {
	mu    sync.Mutex
	saved int
	err   error
}

func (a *recordingArchiver) Save(context.Context, int64, []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.saved++
	return "mem://page", nil
}

type fixture struct {
	store     *memory.Store
	fetcher   *fakeFetcher
	decider   *scriptedDecider
	extractor *fakeExtractor
	emitter   *recordingEmitter
	archiver  *recordingArchiver
	publisher *pubmem.Publisher
	stats     *Stats
	worker    *Worker
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		fetcher:   &fakeFetcher{responses: map[string]crawler.FetchResponse{}, errs: map[string]error{}},
		decider:   &scriptedDecider{},
		extractor: &fakeExtractor{},
		emitter:   &recordingEmitter{},
		archiver:  &recordingArchiver{},
		publisher: pubmem.New(),
		stats:     NewStats(),
	}
	if cfg.Topic == "" {
		cfg.Topic = "locations-completed"
	}
	w, err := New(Dependencies{
		Store:     f.store,
		Fetcher:   f.fetcher,
		Decider:   f.decider,
		Extractor: f.extractor,
		Clock:     fixedClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		Archiver:  f.archiver,
		Publisher: f.publisher,
		Progress:  f.emitter,
		Stats:     f.stats,
	}, cfg, zap.NewNop())
	require.NoError(t, err)
	f.worker = w
	return f
}

// claim inserts a location and claims it so status updates are accepted.
func (f *fixture) claim(t *testing.T, seed string) crawler.Job {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.InsertLocation(ctx, "Ink House", seed)
	require.NoError(t, err)
	locs, err := f.store.ClaimLocations(ctx, 1, nil)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	return crawler.Job{RunID: "run-1", Location: locs[0]}
}

func (f *fixture) status(t *testing.T, id int64) crawler.LocationStatus {
	t.Helper()
	loc, ok := f.store.Location(id)
	require.True(t, ok)
	return loc.Status
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{}, Config{}, nil)
	require.Error(t, err)

	w, err := New(Dependencies{
		Store:     memory.NewStore(),
		Fetcher:   &fakeFetcher{},
		Decider:   &scriptedDecider{},
		Extractor: &fakeExtractor{},
	}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxPageVisits, w.cfg.MaxPageVisits)
	assert.Equal(t, FormatHTML, w.cfg.PageFormat)
}

func TestCrawlNavigatesWithinHost(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxPageVisits: 5})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{
		crawler.Navigate{URL: "https://inkhouse.example/artists"},
		crawler.Done{},
	}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusDone, out.Status)
	assert.Equal(t, ReasonDone, out.Reason)
	assert.Equal(t, 2, out.PagesVisited)
	assert.Equal(t, []string{"https://inkhouse.example", "https://inkhouse.example/artists"}, f.fetcher.Requested())
	assert.Equal(t, []string{"navigate:https://inkhouse.example/artists", "done"}, f.store.Actions(job.Location.ID))
	assert.Equal(t, crawler.StatusDone, f.status(t, job.Location.ID))

	require.Len(t, f.decider.inputs, 2)
	assert.Equal(t, []string{"https://inkhouse.example", "https://inkhouse.example/artists"}, f.decider.inputs[1].Visited)
	assert.Equal(t, 2, f.archiver.saved)
}

func TestCrawlResolvesRelativeNavigation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Navigate{URL: "/team"}}

	f.worker.Crawl(context.Background(), job)

	assert.Equal(t, []string{"https://inkhouse.example", "https://inkhouse.example/team"}, f.fetcher.Requested())
	assert.Equal(t, "navigate:https://inkhouse.example/team", f.store.Actions(job.Location.ID)[0])
}

func TestCrawlRejectsOffHostNavigation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Navigate{URL: "https://instagram.com/inkhouse"}}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusDone, out.Status)
	assert.Equal(t, ReasonNavigationRejected, out.Reason)
	assert.Empty(t, f.store.Actions(job.Location.ID))
	assert.Equal(t, []string{"https://inkhouse.example"}, f.fetcher.Requested())
	assert.Equal(t, crawler.StatusDone, f.status(t, job.Location.ID))
}

func TestCrawlRejectsSubdomain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Navigate{URL: "https://www.inkhouse.example/artists"}}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, ReasonNavigationRejected, out.Reason)
	assert.Len(t, f.fetcher.Requested(), 1)
}

func TestCrawlExtractsArtists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Extract{}}
	f.extractor.candidates = []crawler.Candidate{
		{Name: "Jane Doe", Styles: []string{"Neo-Traditional!!"}, Email: "jane@inkhouse.example"},
	}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusDone, out.Status)
	assert.Equal(t, ReasonExtracted, out.Reason)
	assert.Equal(t, 1, out.ArtistsAdded)
	assert.Equal(t, []string{"extract:new_entities_found:1"}, f.store.Actions(job.Location.ID))

	artists := f.store.Artists(job.Location.ID)
	require.Len(t, artists, 1)
	assert.Equal(t, "Jane Doe", artists[0].Name)
	assert.Equal(t, []string{"neo traditional"}, artists[0].Styles)
	require.Len(t, f.store.Styles(), 1)
	assert.Equal(t, "neo traditional", f.store.Styles()[0].Name)

	// Extraction ends the location; no further decisions are requested.
	assert.Len(t, f.decider.inputs, 1)
	assert.Len(t, f.fetcher.Requested(), 1)
	assert.EqualValues(t, 1, f.stats.Snapshot().ArtistsAdded)
}

func TestCrawlPassesKnownNamesToExtractor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	_, err := f.store.SaveArtist(context.Background(), crawler.Artist{LocationID: job.Location.ID, Name: "Jane Doe"})
	require.NoError(t, err)

	f.decider.actions = []crawler.Action{crawler.Extract{}}
	f.extractor.candidates = []crawler.Candidate{
		{Name: " Sam Lee "},
		{Name: "   "},
	}

	out := f.worker.Crawl(context.Background(), job)

	require.Len(t, f.extractor.inputs, 1)
	assert.Equal(t, []string{"Jane Doe"}, f.extractor.inputs[0].KnownNames)
	assert.Equal(t, 1, out.ArtistsAdded)
	artists := f.store.Artists(job.Location.ID)
	require.Len(t, artists, 2)
	assert.Equal(t, "Sam Lee", artists[1].Name)
	assert.Equal(t, []string{"extract:new_entities_found:1"}, f.store.Actions(job.Location.ID))
}

// flakyStore fails SaveArtist after the first saveOK calls, or ArtistNames
// when namesErr is set.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	saveOK   int
	saves    int
	saveErr  error
	namesErr error
}

func (s *flakyStore) SaveArtist(ctx context.Context, artist crawler.Artist) (int64, error) {
	s.mu.Lock()
	s.saves++
	fail := s.saveErr != nil && s.saves > s.saveOK
	s.mu.Unlock()
	if fail {
		return 0, s.saveErr
	}
	return s.Store.SaveArtist(ctx, artist)
}

func (s *flakyStore) ArtistNames(ctx context.Context, locationID int64) ([]string, error) {
	if s.namesErr != nil {
		return nil, s.namesErr
	}
	return s.Store.ArtistNames(ctx, locationID)
}

// useStore rebuilds the fixture worker on top of store.
func (f *fixture) useStore(t *testing.T, store Store) {
	t.Helper()
	w, err := New(Dependencies{
		Store:     store,
		Fetcher:   f.fetcher,
		Decider:   f.decider,
		Extractor: f.extractor,
		Stats:     f.stats,
	}, Config{}, zap.NewNop())
	require.NoError(t, err)
	f.worker = w
}

func TestCrawlPersistFailureOnSave(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.useStore(t, &flakyStore{Store: f.store, saveOK: 1, saveErr: errors.New("db down")})
	f.decider.actions = []crawler.Action{crawler.Extract{}}
	f.extractor.candidates = []crawler.Candidate{{Name: "Jane Doe"}, {Name: "Sam Lee"}}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusFailed, out.Status)
	assert.Equal(t, crawler.FailurePersist, out.Reason)
	assert.Equal(t, 1, out.ArtistsAdded)
	require.Error(t, out.Err)
	assert.Equal(t, []string{"error:persist_failed:db down"}, f.store.Actions(job.Location.ID))
	assert.Equal(t, crawler.StatusFailed, f.status(t, job.Location.ID))
	assert.Len(t, f.store.Artists(job.Location.ID), 1)
}

func TestCrawlPersistFailureOnKnownNames(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.useStore(t, &flakyStore{Store: f.store, namesErr: errors.New("db down")})
	f.decider.actions = []crawler.Action{crawler.Extract{}}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusFailed, out.Status)
	assert.Equal(t, crawler.FailurePersist, out.Reason)
	assert.Zero(t, out.ArtistsAdded)
	assert.Equal(t, []string{"error:persist_failed:db down"}, f.store.Actions(job.Location.ID))
	assert.Equal(t, crawler.StatusFailed, f.status(t, job.Location.ID))
	assert.Empty(t, f.extractor.inputs)
}

func TestCrawlExtractWithNothingNew(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Extract{}}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusDone, out.Status)
	assert.Equal(t, []string{"extract:no_new_entities"}, f.store.Actions(job.Location.ID))
}

func TestCrawlFetchFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.fetcher.errs["https://inkhouse.example"] = &crawler.FetchError{URL: "https://inkhouse.example", StatusCode: 404}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusFailed, out.Status)
	assert.Equal(t, crawler.FailureFetch, out.Reason)
	require.Error(t, out.Err)
	assert.Equal(t, []string{"error:fetch_failed:404"}, f.store.Actions(job.Location.ID))
	assert.Equal(t, crawler.StatusFailed, f.status(t, job.Location.ID))
	assert.Empty(t, f.decider.inputs)
	assert.EqualValues(t, 1, f.stats.Snapshot().Failed)
}

func TestCrawlInvalidSeed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "ftp://inkhouse.example")

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusFailed, out.Status)
	assert.Equal(t, []string{"error:fetch_failed:invalid_seed"}, f.store.Actions(job.Location.ID))
	assert.Empty(t, f.fetcher.Requested())
}

func TestCrawlDecisionFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.err = errors.New("malformed response")

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusFailed, out.Status)
	assert.Equal(t, []string{"error:decision_failed:malformed response"}, f.store.Actions(job.Location.ID))
}

func TestCrawlExtractionFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Extract{}}
	f.extractor.err = context.DeadlineExceeded

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusFailed, out.Status)
	assert.Equal(t, []string{"error:extract_failed:timeout"}, f.store.Actions(job.Location.ID))
}

func TestCrawlStopsAtVisitBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxPageVisits: 3})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{
		crawler.Navigate{URL: "https://inkhouse.example/a"},
		crawler.Navigate{URL: "https://inkhouse.example/b"},
	}
	f.decider.fallback = crawler.Navigate{URL: "https://inkhouse.example/c"}

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusDone, out.Status)
	assert.Equal(t, ReasonMaxVisits, out.Reason)
	assert.Equal(t, 3, out.PagesVisited)
	assert.Len(t, f.fetcher.Requested(), 3)
	actions := f.store.Actions(job.Location.ID)
	require.NotEmpty(t, actions)
	assert.Equal(t, crawler.AuditMaxVisitsReached, actions[len(actions)-1])
	assert.Equal(t, crawler.StatusDone, f.status(t, job.Location.ID))
}

func TestCrawlRecoversFromPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Extract{}}
	f.extractor.panicWith = "boom"

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusFailed, out.Status)
	assert.Equal(t, []string{"error:panic:boom"}, f.store.Actions(job.Location.ID))
	assert.Equal(t, crawler.StatusFailed, f.status(t, job.Location.ID))
}

func TestCrawlEmitsProgressAndPublishes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.decider.actions = []crawler.Action{crawler.Done{}}

	f.worker.Crawl(context.Background(), job)

	assert.Equal(t, []progress.Stage{
		progress.StageLocationStart,
		progress.StagePageFetched,
		progress.StageDecision,
		progress.StageLocationDone,
	}, f.emitter.Stages())
	for _, evt := range f.emitter.events {
		assert.NoError(t, evt.Validate(), evt.Stage)
	}

	done, err := f.publisher.Completions()
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "done", done[0].Status)
	assert.Equal(t, job.Location.ID, done[0].LocationID)
	assert.Equal(t, "locations-completed", f.publisher.Messages()[0].Topic)
}

func TestCrawlIgnoresArchiveAndPublishFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://inkhouse.example")
	f.archiver.err = errors.New("bucket gone")
	f.publisher.FailWith(errors.New("topic gone"))

	out := f.worker.Crawl(context.Background(), job)

	assert.Equal(t, crawler.StatusDone, out.Status)
	assert.Equal(t, crawler.StatusDone, f.status(t, job.Location.ID))
}

func TestCrawlMarkdownFormat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{PageFormat: FormatMarkdown, MaxPageChars: 40})
	job := f.claim(t, "https://inkhouse.example")

	f.worker.Crawl(context.Background(), job)

	require.Len(t, f.decider.inputs, 1)
	html := f.decider.inputs[0].HTML
	assert.NotContains(t, html, "<h1>")
	assert.Contains(t, html, "Ink House")
	assert.LessOrEqual(t, len(html), 40)
}

func TestRunDrainsQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	q := queuemem.NewQueue(4)
	ctx := context.Background()
	for _, seed := range []string{"https://a.example", "https://b.example"} {
		require.NoError(t, q.Enqueue(ctx, f.claim(t, seed)))
	}
	require.NoError(t, q.Close())

	require.NoError(t, f.worker.Run(ctx, 1, q))

	snap := f.stats.Snapshot()
	assert.EqualValues(t, 2, snap.Processed)
	assert.EqualValues(t, 2, snap.Done)
}

func TestRunReleasesJobAfterCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	job := f.claim(t, "https://a.example")
	ctx, cancel := context.WithCancel(context.Background())

	q := &cancelingQueue{job: job, cancel: cancel}
	require.NoError(t, f.worker.Run(ctx, 1, q))

	assert.Equal(t, crawler.StatusUnclaimed, f.status(t, job.Location.ID))
	assert.EqualValues(t, 1, f.stats.Snapshot().Released)
	assert.Empty(t, f.fetcher.Requested())
}

// cancelingQueue hands out one job and cancels the run while doing so.
type cancelingQueue struct {
	job    crawler.Job
	cancel context.CancelFunc
	served bool
}

func (q *cancelingQueue) Enqueue(context.Context, crawler.Job) error { return nil }

func (q *cancelingQueue) Dequeue(context.Context) (crawler.Job, error) {
	if q.served {
		return crawler.Job{}, crawler.ErrQueueClosed
	}
	q.served = true
	q.cancel()
	return q.job, nil
}

func (q *cancelingQueue) Close() error { return nil }
