package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MirroringMetrics contains all Prometheus metrics related to the
// asynchronous mirroring propagator.
type MirroringMetrics struct {
	Mirrored       *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	MirrorLatency  prometheus.Histogram
	SignalsEmitted *prometheus.CounterVec
	Duplicates     prometheus.Counter
	registry       *prometheus.Registry
}

// NewMirroringMetrics creates a new instance of MirroringMetrics registered
// on the given registry.
func NewMirroringMetrics(registry *prometheus.Registry) (*MirroringMetrics, error) {
	m := &MirroringMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register mirroring metrics: %w", err)
	}
	return m, nil
}

func (m *MirroringMetrics) initMetrics() {
	m.Mirrored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirroring_worklogs_total",
		Help: "Total number of worklogs mirrored onto target entities",
	}, []string{"entity_type"})

	m.Failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirroring_failures_total",
		Help: "Total number of failed mirroring attempts",
	}, []string{"entity_type"})

	m.MirrorLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mirroring_latency_seconds",
		Help:    "Latency from event receipt to mirrored worklog",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	m.SignalsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirroring_signals_emitted_total",
		Help: "Total number of mirroring progress signals emitted",
	}, []string{"status"})

	m.Duplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mirroring_duplicate_events_total",
		Help: "Total number of duplicate event deliveries skipped by idempotency checks",
	})
}

// RecordMirrored increments the mirrored worklog counter for an entity type.
func (m *MirroringMetrics) RecordMirrored(entityType string, latency time.Duration) {
	m.Mirrored.WithLabelValues(entityType).Inc()
	m.MirrorLatency.Observe(latency.Seconds())
}

// RecordFailure increments the failure counter for an entity type.
func (m *MirroringMetrics) RecordFailure(entityType string) {
	m.Failures.WithLabelValues(entityType).Inc()
}

// RecordSignal increments the emitted signal counter for a status.
func (m *MirroringMetrics) RecordSignal(status string) {
	m.SignalsEmitted.WithLabelValues(status).Inc()
}

// RecordDuplicate increments the duplicate delivery counter.
func (m *MirroringMetrics) RecordDuplicate() {
	m.Duplicates.Inc()
}

// Collect implements prometheus.Collector.
func (m *MirroringMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Mirrored.Collect(ch)
	m.Failures.Collect(ch)
	m.MirrorLatency.Collect(ch)
	m.SignalsEmitted.Collect(ch)
	m.Duplicates.Collect(ch)
}

// Describe implements prometheus.Collector.
func (m *MirroringMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Mirrored.Describe(ch)
	m.Failures.Describe(ch)
	m.MirrorLatency.Describe(ch)
	m.SignalsEmitted.Describe(ch)
	m.Duplicates.Describe(ch)
}
