package batchmux

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "batchmux"
	metricsSubsystem = "scheduler"
)

type schedulerMetrics struct {
	phases            prometheus.Histogram
	batchesDispatched prometheus.Counter
	tasksDispatched   *prometheus.CounterVec
	tasksCoalesced    prometheus.Counter
	batchDuration     *prometheus.HistogramVec
}

func newSchedulerMetrics(registerer prometheus.Registerer) *schedulerMetrics {
	return &schedulerMetrics{
		phases: promauto.With(registerer).NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "run_phases",
			Help:      "Number of phases a scheduler run took to settle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		batchesDispatched: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "batches_dispatched_total",
			Help:      "Total number of batches dispatched to handlers.",
		}),
		tasksDispatched: promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tasks_dispatched_total",
			Help:      "Total number of tasks passed to handler batch calls.",
		}, []string{"handler"}),
		tasksCoalesced: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tasks_coalesced_total",
			Help:      "Total number of task instances that reused an already scheduled execution.",
		}),
		batchDuration: promauto.With(registerer).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "batch_duration_seconds",
			Help:      "Time spent inside handler ExecuteBatch calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
	}
}
