package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "mcprouter"
	subsystem = "router"
)

// Metrics holds the Prometheus metrics for routing decisions.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	SelectionsTotal *prometheus.CounterVec
	FallbacksTotal  prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates the router metrics, registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of routing decisions by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		SelectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "selections_total",
				Help:      "Total number of times each server was selected",
			},
			[]string{"server"},
		),
		FallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "fallbacks_total",
				Help:      "Total number of routing decisions resolved by the catch-all rule",
			},
		),
	}
}

// GetMetrics returns the process-wide router metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}
