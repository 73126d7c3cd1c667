package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncDatasetsIndexed counts extent rows written for a product.
	IncDatasetsIndexed(product string, count int)

	// IncSummariesGenerated counts overviews written per period.
	IncSummariesGenerated(product string, period string)

	// ObserveSummaryDuration records how long a product summarization took.
	ObserveSummaryDuration(product string, duration time.Duration)

	// IncUnionRetries counts footprint unions that needed the buffered retry.
	IncUnionRetries()

	// IncDocumentsIngested counts ingested documents by kind.
	IncDocumentsIngested(kind string, count int)

	// IncCacheRequest counts cache lookups by outcome.
	IncCacheRequest(hit bool)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncDatasetsIndexed implements MetricsCollector.
func (n *NoOpMetrics) IncDatasetsIndexed(_ string, _ int) {}

// IncSummariesGenerated implements MetricsCollector.
func (n *NoOpMetrics) IncSummariesGenerated(_ string, _ string) {}

// ObserveSummaryDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveSummaryDuration(_ string, _ time.Duration) {}

// IncUnionRetries implements MetricsCollector.
func (n *NoOpMetrics) IncUnionRetries() {}

// IncDocumentsIngested implements MetricsCollector.
func (n *NoOpMetrics) IncDocumentsIngested(_ string, _ int) {}

// IncCacheRequest implements MetricsCollector.
func (n *NoOpMetrics) IncCacheRequest(_ bool) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
