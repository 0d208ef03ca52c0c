// Package health provides the per-server health monitor: periodic liveness
// probes, a health state machine with failure thresholds and reconnection,
// and rolling statistics.
package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "mcprouter"
	subsystem = "health"
)

// Metrics holds the Prometheus metrics for health monitoring.
type Metrics struct {
	ChecksTotal          *prometheus.CounterVec
	CheckDurationSeconds *prometheus.HistogramVec
	ServerStatus         *prometheus.GaugeVec
	ConsecutiveFailures  *prometheus.GaugeVec
	ReconnectProbesTotal *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates the health metrics, registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checks_total",
				Help:      "Total number of health checks by result",
			},
			[]string{"server", "result"},
		),
		CheckDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "check_duration_seconds",
				Help:      "Duration of health check probes in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"server"},
		),
		ServerStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "server_status",
				Help:      "Server health status (0=unknown, 1=online, 2=degraded, 3=offline)",
			},
			[]string{"server"},
		),
		ConsecutiveFailures: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "consecutive_failures",
				Help:      "Current consecutive failed checks per server",
			},
			[]string{"server"},
		),
		ReconnectProbesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconnect_probes_total",
				Help:      "Total number of out-of-band reconnection probes by result",
			},
			[]string{"server", "result"},
		),
	}
}

// GetMetrics returns the process-wide health metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}

// statusValue maps a status to its gauge value.
func statusValue(s Status) float64 {
	switch s {
	case StatusOnline:
		return 1
	case StatusDegraded:
		return 2
	case StatusOffline:
		return 3
	default:
		return 0
	}
}
