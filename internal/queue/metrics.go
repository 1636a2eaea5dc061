package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the scheduler's prometheus instrumentation. All series
// live under the annoq_queue namespace.
type metrics struct {
	submitted *prometheus.CounterVec
	rejected  prometheus.Counter
	admitted  *prometheus.CounterVec
	completed *prometheus.CounterVec
	killed    prometheus.Counter
	reclaimed prometheus.Counter
	backlog   prometheus.Gauge
	pending   *prometheus.GaugeVec
	running   *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &metrics{
		submitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "submitted_total",
				Help:      "Total tasks accepted into the backlog",
			},
			[]string{"class"},
		),
		rejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "rejected_total",
				Help:      "Total submissions rejected because the backlog was full",
			},
		),
		admitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "admitted_total",
				Help:      "Total entries promoted from pending to running",
			},
			[]string{"class"},
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "completed_total",
				Help:      "Total task executions by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		killed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "killed_total",
				Help:      "Total entries removed by kill requests",
			},
		),
		reclaimed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "reclaimed_total",
				Help:      "Total entries removed by age-based reclamation",
			},
		),
		backlog: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "backlog_size",
				Help:      "Number of tracked entries (pending plus running)",
			},
		),
		pending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "pending",
				Help:      "Number of pending entries per class",
			},
			[]string{"class"},
		),
		running: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "running",
				Help:      "Number of running entries per class",
			},
			[]string{"class"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "annoq",
				Subsystem: "queue",
				Name:      "task_duration_seconds",
				Help:      "Task execution duration by kind and outcome",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"kind", "status"},
		),
	}
}

// observeCompletion records the outcome of one task execution. Called
// from pool workers, so it must not assume the scheduler lock is held.
func (m *metrics) observeCompletion(kind string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.completed.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind, status).Observe(elapsed.Seconds())
}

// setDepths refreshes the backlog gauges from a counts snapshot. The
// backlog total counts every tracked entry, including completed ones
// awaiting deletion.
func (m *metrics) setDepths(pendingCPU, pendingGPU, runningCPU, runningGPU, tracked int) {
	m.pending.WithLabelValues(string(ClassCPU)).Set(float64(pendingCPU))
	m.pending.WithLabelValues(string(ClassGPU)).Set(float64(pendingGPU))
	m.running.WithLabelValues(string(ClassCPU)).Set(float64(runningCPU))
	m.running.WithLabelValues(string(ClassGPU)).Set(float64(runningGPU))
	m.backlog.Set(float64(tracked))
}
