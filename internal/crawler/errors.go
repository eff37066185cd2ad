package crawler

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrQueueClosed is returned by Queue.Dequeue once no more jobs will arrive.
	ErrQueueClosed = errors.New("queue closed")
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when a status update targets a location
	// that is no longer claimed.
	ErrStatusConflict = errors.New("location not in claimed state")
)

// FetchError reports a transport failure or a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Cause is the short label recorded in the audit log for this failure.
func (e *FetchError) Cause() string {
	if e.StatusCode != 0 {
		return strconv.Itoa(e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown"
}
