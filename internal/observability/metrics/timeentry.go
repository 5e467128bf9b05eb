// Package metrics provides custom Prometheus metrics for SynergyFlow components.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TimeEntryMetrics contains all Prometheus metrics related to time entry intake.
type TimeEntryMetrics struct {
	Created          prometheus.Counter
	BulkBatches      prometheus.Counter
	CreationDuration prometheus.Histogram
	ValidationErrors prometheus.Counter
	registry         *prometheus.Registry
}

// NewTimeEntryMetrics creates a new instance of TimeEntryMetrics registered
// on the given registry.
func NewTimeEntryMetrics(registry *prometheus.Registry) (*TimeEntryMetrics, error) {
	m := &TimeEntryMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register time entry metrics: %w", err)
	}
	return m, nil
}

func (m *TimeEntryMetrics) initMetrics() {
	m.Created = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "time_entries_created_total",
		Help: "Total number of time entries durably accepted",
	})

	m.BulkBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "time_entry_bulk_batches_total",
		Help: "Total number of accepted bulk submission batches",
	})

	m.CreationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "time_entry_creation_duration_seconds",
		Help:    "Time from intake request to durable persistence",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	m.ValidationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "time_entry_validation_errors_total",
		Help: "Total number of intake requests rejected by validation",
	})
}

// RecordCreated increments the accepted entry counter.
func (m *TimeEntryMetrics) RecordCreated() {
	m.Created.Inc()
}

// RecordBulkBatch increments the bulk batch counter.
func (m *TimeEntryMetrics) RecordBulkBatch() {
	m.BulkBatches.Inc()
}

// ObserveCreationDuration records how long intake persistence took.
func (m *TimeEntryMetrics) ObserveCreationDuration(d time.Duration) {
	m.CreationDuration.Observe(d.Seconds())
}

// RecordValidationError increments the validation rejection counter.
func (m *TimeEntryMetrics) RecordValidationError() {
	m.ValidationErrors.Inc()
}

// Collect implements prometheus.Collector.
func (m *TimeEntryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Created.Collect(ch)
	m.BulkBatches.Collect(ch)
	m.CreationDuration.Collect(ch)
	m.ValidationErrors.Collect(ch)
}

// Describe implements prometheus.Collector.
func (m *TimeEntryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Created.Describe(ch)
	m.BulkBatches.Describe(ch)
	m.CreationDuration.Describe(ch)
	m.ValidationErrors.Describe(ch)
}
