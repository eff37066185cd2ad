// Package memory provides in-process implementations of the crawler's
// storage interfaces for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

type usageKey struct {
	kind  string
	model string
}

// UsageTotals is the accumulated usage for one (kind, model) pair.
type UsageTotals struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
}

// Store implements crawler.Store under a single mutex.
type Store struct {
	mu sync.Mutex

	nextLocationID int64
	nextArtistID   int64
	nextStyleID    int64

	locations    map[int64]*crawler.Location
	byURI        map[string]int64
	artists      map[int64]crawler.Artist
	artistOrder  []int64
	styles       map[string]crawler.Style // keyed by lower(name)
	artistStyles map[[2]int64]struct{}
	audit        []crawler.AuditEntry
	usage        map[usageKey]*UsageTotals

	now func() time.Time
}

var _ crawler.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		locations:    make(map[int64]*crawler.Location),
		byURI:        make(map[string]int64),
		artists:      make(map[int64]crawler.Artist),
		styles:       make(map[string]crawler.Style),
		artistStyles: make(map[[2]int64]struct{}),
		usage:        make(map[usageKey]*UsageTotals),
		now:          time.Now,
	}
}

// Migrate is a no-op.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// InsertLocation adds an unclaimed location. A known URI returns its id.
func (s *Store) InsertLocation(_ context.Context, name, websiteURI string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byURI[websiteURI]; ok {
		return id, nil
	}
	s.nextLocationID++
	id := s.nextLocationID
	s.locations[id] = &crawler.Location{ID: id, Name: name, SeedURL: websiteURI, Status: crawler.StatusUnclaimed}
	s.byURI[websiteURI] = id
	return id, nil
}

// ClaimLocations moves up to limit unclaimed rows, in id order, to claimed.
func (s *Store) ClaimLocations(_ context.Context, limit int, excludeHosts []string) ([]crawler.Location, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.locations))
	for id := range s.locations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []crawler.Location
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		row := s.locations[id]
		if row.Status != crawler.StatusUnclaimed || row.SeedURL == "" || excluded(row.SeedURL, excludeHosts) {
			continue
		}
		row.Status = crawler.StatusClaimed
		out = append(out, *row)
	}
	return out, nil
}

func excluded(uri string, substrings []string) bool {
	lower := strings.ToLower(uri)
	for _, sub := range substrings {
		sub = strings.TrimSpace(sub)
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// SetLocationStatus finalizes a claimed location.
func (s *Store) SetLocationStatus(_ context.Context, locationID int64, status crawler.LocationStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.locations[locationID]
	if !ok {
		return fmt.Errorf("location %d: %w", locationID, crawler.ErrNotFound)
	}
	if row.Status != crawler.StatusClaimed {
		return fmt.Errorf("set location %d status %s: %w", locationID, status, crawler.ErrStatusConflict)
	}
	row.Status = status
	return nil
}

// ReleaseLocations returns claimed rows to unclaimed.
func (s *Store) ReleaseLocations(_ context.Context, locationIDs []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range locationIDs {
		if row, ok := s.locations[id]; ok && row.Status == crawler.StatusClaimed {
			row.Status = crawler.StatusUnclaimed
			n++
		}
	}
	return n, nil
}

// ArtistNames lists names stored for a location in insertion order.
func (s *Store) ArtistNames(_ context.Context, locationID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, id := range s.artistOrder {
		if a := s.artists[id]; a.LocationID == locationID {
			names = append(names, a.Name)
		}
	}
	return names, nil
}

// SaveArtist stores the artist and links its normalized styles.
func (s *Store) SaveArtist(_ context.Context, artist crawler.Artist) (int64, error) {
	if strings.TrimSpace(artist.Name) == "" {
		return 0, errors.New("artist name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextArtistID++
	artist.ID = s.nextArtistID
	artist.Styles = crawler.NormalizeStyles(artist.Styles)
	s.artists[artist.ID] = artist
	s.artistOrder = append(s.artistOrder, artist.ID)

	for _, name := range artist.Styles {
		style, ok := s.styles[name]
		if !ok {
			s.nextStyleID++
			style = crawler.Style{ID: s.nextStyleID, Name: name}
			s.styles[name] = style
		}
		s.artistStyles[[2]int64{artist.ID, style.ID}] = struct{}{}
	}
	return artist.ID, nil
}

// LogAction appends an audit entry.
func (s *Store) LogAction(_ context.Context, entry crawler.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	s.audit = append(s.audit, entry)
	return nil
}

// RecordOracleUsage accumulates token usage.
func (s *Store) RecordOracleUsage(_ context.Context, usage crawler.OracleUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey{kind: usage.Kind, model: usage.Model}
	totals, ok := s.usage[key]
	if !ok {
		totals = &UsageTotals{}
		s.usage[key] = totals
	}
	totals.Calls++
	totals.InputTokens += usage.InputTokens
	totals.OutputTokens += usage.OutputTokens
	return nil
}

// Location returns a copy of the location row.
func (s *Store) Location(id int64) (crawler.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.locations[id]
	if !ok {
		return crawler.Location{}, false
	}
	return *row, true
}

// Actions returns the audit labels recorded for a location, in order.
func (s *Store) Actions(locationID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.audit {
		if e.LocationID == locationID {
			out = append(out, e.Action)
		}
	}
	return out
}

// Artists returns stored artists for a location in insertion order.
func (s *Store) Artists(locationID int64) []crawler.Artist {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []crawler.Artist
	for _, id := range s.artistOrder {
		if a := s.artists[id]; a.LocationID == locationID {
			out = append(out, a)
		}
	}
	return out
}

// Styles returns every style row sorted by id.
func (s *Store) Styles() []crawler.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawler.Style, 0, len(s.styles))
	for _, st := range s.styles {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StyleLinks reports how many artist-style links exist.
func (s *Store) StyleLinks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artistStyles)
}

// Usage returns the accumulated totals for kind and model.
func (s *Store) Usage(kind, model string) UsageTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.usage[usageKey{kind: kind, model: model}]; ok {
		return *t
	}
	return UsageTotals{}
}
