// Package telemetry sets up OpenTelemetry tracing for crawl runs.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for crawler spans.
const TracerName = "github.com/JakeFAU/artist-crawler"

// Span attribute keys.
const (
	AttrRunID      = attribute.Key("crawler.run_id")
	AttrLocationID = attribute.Key("crawler.location_id")
	AttrSeedURL    = attribute.Key("crawler.seed_url")
	AttrPages      = attribute.Key("crawler.pages_visited")
	AttrArtists    = attribute.Key("crawler.artists_added")
	AttrOutcome    = attribute.Key("crawler.outcome")
)

// InitTracerProvider installs a global tracer provider and the W3C
// propagators. Exporters are supplied by the caller through opts; with none,
// spans are recorded but not exported.
func InitTracerProvider(ctx context.Context, serviceName string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// Tracer returns the crawler tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartLocationSpan opens the span that covers one location's crawl.
func StartLocationSpan(ctx context.Context, tracer trace.Tracer, runID string, locationID int64, seedURL string) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Tracer()
	}
	return tracer.Start(ctx, "crawl.location",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrRunID.String(runID),
			AttrLocationID.Int64(locationID),
			AttrSeedURL.String(seedURL),
		),
	)
}

// EndLocationSpan records the outcome and ends the span.
func EndLocationSpan(span trace.Span, outcome string, pages, artists int, err error) {
	span.SetAttributes(
		AttrOutcome.String(outcome),
		AttrPages.Int(pages),
		AttrArtists.Int(artists),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
