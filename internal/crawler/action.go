package crawler

import (
	"fmt"
	"strconv"
)

// Action is the closed set of moves the decision oracle can make. The
// unexported marker method keeps implementations inside this package so a
// type switch over Navigate, Extract and Done is exhaustive.
type Action interface {
	isAction()
	fmt.Stringer
}

// Navigate asks the crawler to fetch URL next.
type Navigate struct {
	URL string
}

// Extract asks the crawler to pull artists from the current page.
type Extract struct{}

// Done ends the crawl for the location.
type Done struct{}

func (Navigate) isAction() {}
func (Extract) isAction()  {}
func (Done) isAction()     {}

func (n Navigate) String() string { return "NAVIGATE " + n.URL }
func (Extract) String() string    { return "EXTRACT" }
func (Done) String() string       { return "DONE" }

// Audit labels written to the scrape_actions table.
const (
	AuditDone              = "done"
	AuditMaxVisitsReached  = "done:max_visits_reached"
	AuditNoNewEntities     = "extract:no_new_entities"
	auditNavigatePrefix    = "navigate:"
	auditNewEntitiesPrefix = "extract:new_entities_found:"
)

// Failure classes used in error audit labels.
const (
	FailureFetch    = "fetch_failed"
	FailureDecision = "decision_failed"
	FailureExtract  = "extract_failed"
	FailurePersist  = "persist_failed"
)

// NavigateLabel is the audit label for an accepted navigation.
func NavigateLabel(url string) string {
	return auditNavigatePrefix + url
}

// ExtractLabel is the audit label for a completed extraction of n artists.
func ExtractLabel(n int) string {
	if n == 0 {
		return AuditNoNewEntities
	}
	return auditNewEntitiesPrefix + strconv.Itoa(n)
}

// ErrorLabel is the audit label for a failure of the given class.
func ErrorLabel(class, cause string) string {
	return "error:" + class + ":" + cause
}
