// Package system provides the wall clock used for audit timestamps.
package system

import "time"

// Clock implements crawler.Clock; times are always UTC.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
