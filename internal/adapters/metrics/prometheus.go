// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	datasetsIndexed     *prometheus.CounterVec
	summariesGenerated  *prometheus.CounterVec
	summaryDuration     *prometheus.HistogramVec
	unionRetries        prometheus.Counter
	documentsIngested   *prometheus.CounterVec
	cacheRequests       *prometheus.CounterVec
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "strata"
	}

	return &Collector{
		datasetsIndexed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datasets_indexed_total",
				Help:      "Total number of extent rows written",
			},
			[]string{"product"},
		),

		summariesGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summaries_generated_total",
				Help:      "Total number of period overviews written",
			},
			[]string{"product", "period"},
		),

		summaryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "summary_duration_seconds",
				Help:      "Product summarization duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"product"},
		),

		unionRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "footprint_union_retries_total",
				Help:      "Total number of footprint unions that needed a buffered retry",
			},
		),

		documentsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Total number of ingested metadata documents",
			},
			[]string{"kind"},
		),

		cacheRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Total number of response cache lookups",
			},
			[]string{"result"},
		),

		storageOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),

		storageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncDatasetsIndexed counts extent rows written for a product.
func (c *Collector) IncDatasetsIndexed(product string, count int) {
	c.datasetsIndexed.WithLabelValues(product).Add(float64(count))
}

// IncSummariesGenerated counts overviews written per period.
func (c *Collector) IncSummariesGenerated(product string, period string) {
	c.summariesGenerated.WithLabelValues(product, period).Inc()
}

// ObserveSummaryDuration records how long a product summarization took.
func (c *Collector) ObserveSummaryDuration(product string, duration time.Duration) {
	c.summaryDuration.WithLabelValues(product).Observe(duration.Seconds())
}

// IncUnionRetries counts footprint unions that needed the buffered retry.
func (c *Collector) IncUnionRetries() {
	c.unionRetries.Inc()
}

// IncDocumentsIngested counts ingested documents by kind.
func (c *Collector) IncDocumentsIngested(kind string, count int) {
	c.documentsIngested.WithLabelValues(kind).Add(float64(count))
}

// IncCacheRequest counts cache lookups by outcome.
func (c *Collector) IncCacheRequest(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	c.cacheRequests.WithLabelValues(result).Inc()
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.storageOperations.WithLabelValues(operation, status).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath replaces the product name and date segments of API
// paths with placeholders to keep metric cardinality bounded.
func normalizePath(path string) string {
	const prefix = "/api/v1/products/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}

	rest := strings.Split(strings.TrimPrefix(path, prefix), "/")
	rest[0] = ":product"
	for i := 1; i < len(rest); i++ {
		// Date segments of overview and footprint routes.
		if rest[i] != "" && rest[i][0] >= '0' && rest[i][0] <= '9' {
			rest[i] = ":n"
		}
	}
	return prefix + strings.Join(rest, "/")
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
