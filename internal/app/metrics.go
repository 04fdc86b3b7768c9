package app

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "imageloader/app"

var tracer = otel.Tracer(instrumentationName)

type loaderMetricsCollection struct {
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	coalesced     metric.Int64Counter
	fetchErrors   metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

var metrics loaderMetricsCollection

func init() {
	meter := otel.Meter(instrumentationName)

	cacheHits, err := meter.Int64Counter(
		"loader/cache_hits",
		metric.WithDescription("Loads served from the cache"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache hits metric: %w", err))
	}

	cacheMisses, err := meter.Int64Counter(
		"loader/cache_misses",
		metric.WithDescription("Loads not served from the cache"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cache misses metric: %w", err))
	}

	coalesced, err := meter.Int64Counter(
		"loader/coalesced",
		metric.WithDescription("Loads that joined an outstanding fetch"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create coalesced metric: %w", err))
	}

	fetchErrors, err := meter.Int64Counter(
		"loader/fetch_errors",
		metric.WithDescription("Fetches that failed, by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fetch errors metric: %w", err))
	}

	fetchDuration, err := meter.Float64Histogram(
		"loader/fetch_duration_seconds",
		metric.WithDescription("Time spent fetching and decoding resources"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fetch duration metric: %w", err))
	}

	metrics = loaderMetricsCollection{
		cacheHits:     cacheHits,
		cacheMisses:   cacheMisses,
		coalesced:     coalesced,
		fetchErrors:   fetchErrors,
		fetchDuration: fetchDuration,
	}
}

func outcomeOption(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}
