package worker

import "sync/atomic"

// Stats aggregates outcomes across all workers of a run.
type Stats struct {
	processed    atomic.Int64
	done         atomic.Int64
	failed       atomic.Int64
	artistsAdded atomic.Int64
	released     atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Processed    int64 `json:"processed"`
	Done         int64 `json:"done"`
	Failed       int64 `json:"failed"`
	ArtistsAdded int64 `json:"artists_added"`
	Released     int64 `json:"released"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Record adds one finished location.
func (s *Stats) Record(out Outcome) {
	if s == nil {
		return
	}
	s.processed.Add(1)
	s.artistsAdded.Add(int64(out.ArtistsAdded))
	if out.Status == statusDone {
		s.done.Add(1)
	} else {
		s.failed.Add(1)
	}
}

// AddReleased counts locations handed back unclaimed.
func (s *Stats) AddReleased(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.released.Add(int64(n))
}

// Snapshot returns the current totals.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		Processed:    s.processed.Load(),
		Done:         s.done.Load(),
		Failed:       s.failed.Load(),
		ArtistsAdded: s.artistsAdded.Load(),
		Released:     s.released.Load(),
	}
}
