// Package observability provides metrics and monitoring capabilities for SynergyFlow.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/monosense-io/synergyflow/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	TimeEntry *metrics.TimeEntryMetrics
	Mirroring *metrics.MirroringMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any metric collector fails to register.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	timeEntryMetrics, err := metrics.NewTimeEntryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create time entry metrics: %w", err)
	}

	mirroringMetrics, err := metrics.NewMirroringMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create mirroring metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		TimeEntry: timeEntryMetrics,
		Mirroring: mirroringMetrics,
	}, nil
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
