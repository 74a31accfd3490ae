package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the heartbeat monitor's Prometheus metrics
type Metrics struct {
	cyclesTotal         prometheus.Counter
	cycleDuration       prometheus.Histogram
	nodesEvaluated      prometheus.Counter
	transitionsTotal    *prometheus.CounterVec
	scanErrorsTotal     prometheus.Counter
	missedNotifications *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates the monitor metrics (singleton; promauto registration
// must happen once per process).
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			cyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "heartbeat_scan_cycles_total",
				Help: "Total number of heartbeat scan cycles run",
			}),

			cycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "heartbeat_scan_cycle_duration_seconds",
				Help:    "Heartbeat scan cycle duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			}),

			nodesEvaluated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "heartbeat_nodes_evaluated_total",
				Help: "Total number of node liveness evaluations",
			}),

			transitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "heartbeat_transitions_total",
					Help: "Total number of applied liveness transitions",
				},
				[]string{"direction"},
			),

			scanErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "heartbeat_scan_errors_total",
				Help: "Total number of per-node errors during scan cycles",
			}),

			missedNotifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "heartbeat_missed_notifications_total",
					Help: "Transitions whose staff notification failed and was not retried",
				},
				[]string{"channel"},
			),
		}
	})

	return metricsInstance
}

// RecordCycle records a completed scan cycle
func (m *Metrics) RecordCycle(summary ScanSummary, duration time.Duration) {
	m.cyclesTotal.Inc()
	m.cycleDuration.Observe(duration.Seconds())
	m.nodesEvaluated.Add(float64(summary.Evaluated))
	m.transitionsTotal.WithLabelValues("to_faulty").Add(float64(summary.TransitionedToFaulty))
	m.transitionsTotal.WithLabelValues("to_healthy").Add(float64(summary.TransitionedToHealthy))
	m.scanErrorsTotal.Add(float64(summary.Errors))
}

// RecordMissedNotification records a notification that was lost on a channel
func (m *Metrics) RecordMissedNotification(channel string) {
	m.missedNotifications.WithLabelValues(channel).Inc()
}
