// Package metrics provides Prometheus instrumentation for extraction jobs.
// All metrics are registered with the default registry via promauto; the CLI
// exposes them on demand and tests can read them back through the default
// gatherer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts pages fetched per connector and outcome.
	// Labels: connector, status (success/failure)
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_pages_fetched_total",
			Help: "Total number of pages fetched from upstream APIs",
		},
		[]string{"connector", "status"},
	)

	// RecordsExtracted counts records accumulated after filtering.
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_records_extracted_total",
			Help: "Total number of records accumulated after filtering",
		},
		[]string{"connector"},
	)

	// RetryAttempts counts retried page fetches.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_retry_attempts_total",
			Help: "Total number of retried page fetches",
		},
		[]string{"connector"},
	)

	// FetchLatency tracks the distribution of single-page fetch latencies.
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extractor_fetch_latency_seconds",
			Help:    "Latency of single page fetches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"connector"},
	)

	// SinkBytesWritten counts bytes persisted per sink kind.
	SinkBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_sink_bytes_written_total",
			Help: "Total bytes written to durable storage",
		},
		[]string{"sink"},
	)

	// JobsCompleted counts finished jobs per connector and terminal status.
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_jobs_completed_total",
			Help: "Total number of completed download jobs",
		},
		[]string{"connector", "status"},
	)
)

// Collector scopes the shared metric vectors to one connector so call sites
// don't repeat label plumbing.
type Collector struct {
	connector string
	startTime time.Time
}

// NewCollector creates a collector labeled with the connector name.
func NewCollector(connector string) *Collector {
	return &Collector{connector: connector, startTime: time.Now()}
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// PageFetched records one fetched page with its outcome.
func (c *Collector) PageFetched(success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	PagesFetched.WithLabelValues(c.connector, status).Inc()
	FetchLatency.WithLabelValues(c.connector).Observe(latency.Seconds())
}

// RecordsAccumulated records filtered records appended to the job dataset.
func (c *Collector) RecordsAccumulated(n int) {
	RecordsExtracted.WithLabelValues(c.connector).Add(float64(n))
}

// Retried records one retried fetch attempt.
func (c *Collector) Retried() {
	RetryAttempts.WithLabelValues(c.connector).Inc()
}

// JobFinished records a completed job.
func (c *Collector) JobFinished(status string) {
	JobsCompleted.WithLabelValues(c.connector, status).Inc()
}
