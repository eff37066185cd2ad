// Package api hosts the ops HTTP server. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for cumulative crawl totals and the last run summary.
package api
