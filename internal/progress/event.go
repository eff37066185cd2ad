package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageLocationStart  Stage = "LOCATION_START"
	StagePageFetched    Stage = "PAGE_FETCHED"
	StageDecision       Stage = "DECISION"
	StageLocationDone   Stage = "LOCATION_DONE"
	StageLocationFailed Stage = "LOCATION_FAILED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of one location's crawl.
type Event struct {
	RunID      string
	LocationID int64
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site scopes fetch events to a host label.
	Site string
	URL  string
	// Bytes is the response size for PAGE_FETCHED.
	Bytes       int64
	StatusClass StatusClass
	// Action is the oracle's choice for DECISION events.
	Action string
	// Artists is the number of artists persisted, set on LOCATION_DONE.
	Artists int
	// Dur is fetch latency or total location runtime.
	Dur time.Duration
	// Note carries the terminal reason or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.LocationID == 0 {
		return errors.New("location id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageLocationStart, StageLocationDone, StageLocationFailed:
	case StagePageFetched:
		if e.Site == "" {
			return errors.New("page fetched requires site")
		}
		if e.StatusClass == "" {
			return errors.New("page fetched requires status class")
		}
	case StageDecision:
		if e.Action == "" {
			return errors.New("decision requires action")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
