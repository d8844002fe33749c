package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	ActivitiesSavedTotal       metric.Int64Counter
	ActivitiesDedupedTotal     metric.Int64Counter
	ResolutionFailuresTotal    metric.Int64Counter
	ResolutionDurationSeconds  metric.Float64Histogram
	UpsertErrorsTotal          metric.Int64Counter
	EmbeddingDurationSeconds   metric.Float64Histogram
	SimilaritySearchesTotal    metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("activity-engine")
		var err error
		m := &AppMetrics{}

		m.ActivitiesSavedTotal, err = meter.Int64Counter(
			"activities_saved_total",
			metric.WithDescription("Total number of activities persisted (inserts and updates)"),
			metric.WithUnit("{record}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create activities_saved_total: %v", err)
		}

		m.ActivitiesDedupedTotal, err = meter.Int64Counter(
			"activities_deduped_total",
			metric.WithDescription("Total number of incoming activities matched to an existing record"),
			metric.WithUnit("{record}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create activities_deduped_total: %v", err)
		}

		m.ResolutionFailuresTotal, err = meter.Int64Counter(
			"address_resolution_failures_total",
			metric.WithDescription("Total number of activities whose address could not be resolved"),
			metric.WithUnit("{record}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create address_resolution_failures_total: %v", err)
		}

		m.ResolutionDurationSeconds, err = meter.Float64Histogram(
			"address_resolution_duration_seconds",
			metric.WithDescription("Duration of address resolution chains in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create address_resolution_duration_seconds: %v", err)
		}

		m.UpsertErrorsTotal, err = meter.Int64Counter(
			"store_upsert_errors_total",
			metric.WithDescription("Total number of failed batch upserts"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create store_upsert_errors_total: %v", err)
		}

		m.EmbeddingDurationSeconds, err = meter.Float64Histogram(
			"embedding_duration_seconds",
			metric.WithDescription("Duration of embedding calls in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create embedding_duration_seconds: %v", err)
		}

		m.SimilaritySearchesTotal, err = meter.Int64Counter(
			"similarity_searches_total",
			metric.WithDescription("Total number of similarity searches served"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create similarity_searches_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
