// Package sinks implements progress consumers: structured logging and
// Prometheus collectors. Each satisfies progress.Sink.
package sinks
