package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PlacementMetrics tracks order placement outcomes and latency.
type PlacementMetrics struct {
	Placements *prometheus.CounterVec
	Latency    prometheus.Histogram
}

// NewPlacementMetrics registers the placement metrics with reg.
func NewPlacementMetrics(reg prometheus.Registerer) *PlacementMetrics {
	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "orders",
		Name:      "placements_total",
		Help:      "Order placement attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "orders",
		Name:      "placement_duration_seconds",
		Help:      "Order placement latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	reg.MustRegister(placements, latency)
	return &PlacementMetrics{Placements: placements, Latency: latency}
}

// Observe records one placement attempt.
func (m *PlacementMetrics) Observe(outcome string, d time.Duration) {
	m.Placements.WithLabelValues(outcome).Inc()
	m.Latency.Observe(d.Seconds())
}

// Handler exposes the default Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
