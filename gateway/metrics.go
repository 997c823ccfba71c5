package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	ops                 *prometheus.CounterVec
	commitDuration      *prometheus.HistogramVec
	commitRetries       *prometheus.HistogramVec
	commitFailures      *prometheus.CounterVec
	activeSubscriptions prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_operations_total",
				Help: "Total number of gateway operations",
			},
			[]string{"operation", "outcome"},
		),
		commitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgate_commit_duration_seconds",
				Help:    "Duration of KV commit operations",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 0.2, 0.5, 1, 1.5, 2},
			},
			[]string{"operation"},
		),
		commitRetries: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgate_commit_retries",
				Help:    "Number of commit retries",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 10, 20},
			},
			[]string{"operation", "status"},
		),
		commitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_commit_failures_total",
				Help: "Total number of failed commits",
			},
			[]string{"operation", "code"},
		),
		activeSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docgate_active_subscriptions",
				Help: "Number of live subscriptions",
			},
		),
	}
}

// Collectors returns the gateway's metrics for registration.
func (g *Gateway) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		g.metrics.ops,
		g.metrics.commitDuration,
		g.metrics.commitRetries,
		g.metrics.commitFailures,
		g.metrics.activeSubscriptions,
	}
}

func (g *Gateway) countOp(op string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	g.metrics.ops.WithLabelValues(op, outcome).Inc()
}
