package crawler

import (
	"context"
	"time"
)

// LocationStore claims and finalizes location rows.
type LocationStore interface {
	ClaimLocations(ctx context.Context, limit int, excludeHosts []string) ([]Location, error)
	SetLocationStatus(ctx context.Context, locationID int64, status LocationStatus) error
	ReleaseLocations(ctx context.Context, locationIDs []int64) (int, error)
	InsertLocation(ctx context.Context, name, websiteURI string) (int64, error)
}

// ArtistStore persists extracted artists and their styles.
type ArtistStore interface {
	ArtistNames(ctx context.Context, locationID int64) ([]string, error)
	SaveArtist(ctx context.Context, artist Artist) (int64, error)
}

// AuditLog appends crawl actions.
type AuditLog interface {
	LogAction(ctx context.Context, entry AuditEntry) error
}

// UsageRecorder accumulates oracle token usage.
type UsageRecorder interface {
	RecordOracleUsage(ctx context.Context, usage OracleUsage) error
}

// Store is the full persistence surface used by the crawler. Every backend
// (postgres, sqlite, memory) implements it.
type Store interface {
	LocationStore
	ArtistStore
	AuditLog
	UsageRecorder
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// DecisionOracle picks the next action for the current page.
type DecisionOracle interface {
	Decide(ctx context.Context, input DecisionInput) (Action, error)
}

// ExtractionOracle pulls candidate artists out of a page.
type ExtractionOracle interface {
	Extract(ctx context.Context, input ExtractionInput) ([]Candidate, error)
}

// Queue distributes jobs to workers. Dequeue returns ErrQueueClosed once the
// queue is closed and drained.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
