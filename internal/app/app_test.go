package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/api"
	"github.com/JakeFAU/artist-crawler/internal/config"
	"github.com/JakeFAU/artist-crawler/internal/crawler"
	"github.com/JakeFAU/artist-crawler/internal/oracle"
	storagememory "github.com/JakeFAU/artist-crawler/internal/storage/memory"
)

// scriptedCompleter answers decide calls with EXTRACT and extract calls with
// one artist.
type scriptedCompleter struct {
	mu    sync.Mutex
	calls int
}

func (c *scriptedCompleter) Complete(_ context.Context, req oracle.Request) (oracle.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	text := `{"action":"EXTRACT"}`
	if req.MaxTokens == 1500 {
		text = `[{"name":"Jane Doe","styles":["Fine Line"]}]`
	}
	return oracle.Response{Text: text, Model: "test-model", InputTokens: 10, OutputTokens: 5}, nil
}

type pageFetcher struct{}

func (pageFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Body:       []byte("<html><body><h2>Jane Doe</h2><p>Fine line</p></body></html>"),
	}, nil
}

func testConfig() config.Config {
	return config.Config{
		Crawler: config.CrawlerConfig{
			Workers:       2,
			MaxClaim:      10,
			MaxPageVisits: 3,
			UserAgent:     config.DefaultUserAgent,
			FetchTimeout:  time.Second,
			ExcludeHosts:  []string{"facebook"},
		},
		Oracle: config.OracleConfig{
			Provider:            config.OracleAnthropic,
			APIKey:              "test-key",
			Timeout:             time.Second,
			DecisionMaxTokens:   1000,
			ExtractionMaxTokens: 1500,
			PageFormat:          "html",
		},
		Database:  config.DatabaseConfig{Provider: config.DatabaseMemory},
		Queue:     config.QueueConfig{Provider: config.QueueMemory},
		Archive:   config.ArchiveConfig{Provider: config.ArchiveMemory, Prefix: "pages"},
		Publisher: config.PublisherConfig{Provider: config.PublisherMemory, PubSub: config.PubSubConfig{TopicID: "done"}},
		Server:    config.ServerConfig{Enabled: true, Port: 9090},
		Progress:  config.ProgressConfig{BufferSize: 16},
	}
}

func TestNewRunsEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := storagememory.NewStore()
	id, err := store.InsertLocation(ctx, "Fine Line Studio", "https://fineline.example")
	require.NoError(t, err)
	skipped, err := store.InsertLocation(ctx, "FB", "https://facebook.com/fineline")
	require.NoError(t, err)

	completer := &scriptedCompleter{}
	a, err := New(ctx, testConfig(), zap.NewNop(), Overrides{
		Completer: completer,
		Fetcher:   pageFetcher{},
		Store:     store,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	summary, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Claimed)
	assert.EqualValues(t, 1, summary.Done)
	assert.EqualValues(t, 1, summary.ArtistsAdded)

	loc, _ := store.Location(id)
	assert.Equal(t, crawler.StatusDone, loc.Status)
	other, _ := store.Location(skipped)
	assert.Equal(t, crawler.StatusUnclaimed, other.Status)

	artists := store.Artists(id)
	require.Len(t, artists, 1)
	assert.Equal(t, []string{"fine line"}, artists[0].Styles)
	assert.Equal(t, []string{"extract:new_entities_found:1"}, store.Actions(id))
	assert.EqualValues(t, 1, store.Usage(oracle.KindDecide, "test-model").Calls)
	assert.EqualValues(t, 1, store.Usage(oracle.KindExtract, "test-model").Calls)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats api.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, summary.RunID, stats.LastRun.RunID)
	assert.EqualValues(t, 1, stats.Totals.Done)
}

func TestOpenStoreSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := OpenStore(ctx, config.DatabaseConfig{
		Provider: config.DatabaseSQLite,
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "artists.db")},
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Ping(ctx))
}

func TestOpenStoreUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := OpenStore(context.Background(), config.DatabaseConfig{Provider: "mysql"}, zap.NewNop())
	require.ErrorContains(t, err, "unknown database provider")
}

func TestNewRejectsUnknownQueue(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Provider = "kafka"

	_, err := New(context.Background(), cfg, zap.NewNop(), Overrides{
		Completer: &scriptedCompleter{},
		Fetcher:   pageFetcher{},
		Store:     storagememory.NewStore(),
	})
	require.ErrorContains(t, err, "unknown queue provider")
}

func TestNewBuildsRealOracleClients(t *testing.T) {
	cfg := testConfig()
	a, err := New(context.Background(), cfg, zap.NewNop(), Overrides{Store: storagememory.NewStore()})
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	cfg.Oracle.APIKey = ""
	_, err = New(context.Background(), cfg, zap.NewNop(), Overrides{Store: storagememory.NewStore()})
	require.ErrorContains(t, err, "api key")
}
