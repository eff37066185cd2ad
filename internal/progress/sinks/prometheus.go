package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/artist-crawler/internal/progress"
)

// PrometheusSink turns progress events into location and fetch collectors.
type PrometheusSink struct {
	locationsStarted   prometheus.Counter
	locationsCompleted *prometheus.CounterVec
	locationsRunning   prometheus.Gauge
	locationRuntime    *prometheus.HistogramVec
	artistsPersisted   prometheus.Counter
	decisions          *prometheus.CounterVec

	pagesFetched  *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	mu      sync.Mutex
	running map[int64]struct{}
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		locationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artist_crawler_locations_started_total",
			Help: "Locations whose crawl has started.",
		}),
		locationsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artist_crawler_locations_completed_total",
			Help: "Locations that reached a terminal status, by result.",
		}, []string{"result"}),
		locationsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "artist_crawler_locations_running",
			Help: "Locations currently being crawled.",
		}),
		locationRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artist_crawler_location_runtime_seconds",
			Help:    "Wall time per location crawl.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		artistsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artist_crawler_artists_persisted_total",
			Help: "Artists written to the store.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artist_crawler_decisions_total",
			Help: "Oracle decisions by action.",
		}, []string{"action"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artist_crawler_pages_fetched_total",
			Help: "Fetch completions by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artist_crawler_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artist_crawler_fetch_duration_seconds",
			Help:    "Fetch duration by status class.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 15},
		}, []string{"status_class"}),
		running: make(map[int64]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.locationsStarted,
		s.locationsCompleted,
		s.locationsRunning,
		s.locationRuntime,
		s.artistsPersisted,
		s.decisions,
		s.pagesFetched,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageLocationStart:
			s.locationsStarted.Inc()
			if s.track(evt.LocationID, true) {
				s.locationsRunning.Inc()
			}
		case progress.StageLocationDone:
			s.complete(evt, "done")
			if evt.Artists > 0 {
				s.artistsPersisted.Add(float64(evt.Artists))
			}
		case progress.StageLocationFailed:
			s.complete(evt, "failed")
		case progress.StageDecision:
			s.decisions.WithLabelValues(evt.Action).Inc()
		case progress.StagePageFetched:
			s.observeFetch(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) complete(evt progress.Event, result string) {
	s.locationsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.locationRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.LocationID, false) {
		s.locationsRunning.Dec()
	}
}

func (s *PrometheusSink) observeFetch(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	class := string(evt.StatusClass)
	if class == "" {
		class = string(progress.StatusOther)
	}
	s.pagesFetched.WithLabelValues(site, class).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
	}
}

// track records a location as running (start=true) or finished and reports
// whether the running set changed.
func (s *PrometheusSink) track(id int64, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	if start {
		if ok {
			return false
		}
		s.running[id] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, id)
	return true
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
