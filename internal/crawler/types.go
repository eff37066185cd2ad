package crawler

import (
	"net/http"
	"time"
)

// LocationStatus is the persisted crawl state of a location row.
type LocationStatus int

// Location status values stored in locations.is_scraped.
const (
	StatusUnclaimed LocationStatus = 0
	StatusClaimed   LocationStatus = -2
	StatusDone      LocationStatus = 1
	StatusFailed    LocationStatus = -1
)

// Terminal reports whether the status is a final state.
func (s LocationStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

func (s LocationStatus) String() string {
	switch s {
	case StatusUnclaimed:
		return "unclaimed"
	case StatusClaimed:
		return "claimed"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Location is a claimed business record with its seed URL.
type Location struct {
	ID      int64
	Name    string
	SeedURL string
	Status  LocationStatus
}

// Job is one unit of work handed to a worker.
type Job struct {
	RunID    string   `json:"run_id"`
	Location Location `json:"location"`
}

// Candidate is an artist proposed by the extraction oracle. Only Name is
// required; everything else is best effort.
type Candidate struct {
	Name            string
	Styles          []string
	Email           string
	Phone           string
	SocialLinks     string
	YearsExperience int
}

// Artist is the persisted form of a candidate.
type Artist struct {
	ID              int64
	LocationID      int64
	Name            string
	Email           string
	Phone           string
	SocialLinks     string
	YearsExperience int
	Styles          []string
}

// Style is a normalized taxonomy value.
type Style struct {
	ID   int64
	Name string
}

// AuditEntry is one append-only row in the crawl audit log.
type AuditEntry struct {
	LocationID int64
	Action     string
	Timestamp  time.Time
}

// OracleUsage records token consumption for a single model call.
type OracleUsage struct {
	Kind         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	LocationID int64
	URL        string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// DecisionInput is what the decision oracle sees for one page.
type DecisionInput struct {
	URL     string
	HTML    string
	Visited []string
}

// ExtractionInput is what the extraction oracle sees for one page.
type ExtractionInput struct {
	URL        string
	HTML       string
	KnownNames []string
}

// LocationCompleted is published once a location reaches a terminal status.
type LocationCompleted struct {
	RunID        string    `json:"run_id"`
	LocationID   int64     `json:"location_id"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason"`
	PagesVisited int       `json:"pages_visited"`
	ArtistsAdded int       `json:"artists_added"`
	CompletedAt  time.Time `json:"completed_at"`
}
