// Package progress carries location-level crawl milestones from workers to
// observers. Workers call Emit, which never blocks; a background goroutine
// batches events and hands them to sinks such as structured logs or
// Prometheus collectors. Observers never influence the crawl itself.
package progress
