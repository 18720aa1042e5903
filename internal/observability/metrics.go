package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	startedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "assembly_service",
		Subsystem: "lifecycle",
		Name:      "assemblies_started_total",
		Help:      "Number of assembly entries opened.",
	})

	completedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assembly_service",
		Subsystem: "lifecycle",
		Name:      "assemblies_completed_total",
		Help:      "Number of assembly entries completed, labeled by cause (manual or deadline).",
	}, []string{"cause"})

	activeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "assembly_service",
		Subsystem: "lifecycle",
		Name:      "assemblies_active",
		Help:      "Number of assembly entries currently in progress.",
	})

	deadlineLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "assembly_service",
		Subsystem: "scheduler",
		Name:      "deadline_lag_seconds",
		Help:      "Delay between an entry's expected end and its forced completion.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	reconciledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "assembly_service",
		Subsystem: "scheduler",
		Name:      "deadlines_reconciled_total",
		Help:      "Number of overdue entries force-completed by the startup or sweep reconciliation.",
	})
)

func init() {
	prometheus.MustRegister(startedCounter, completedCounter, activeGauge, deadlineLag, reconciledCounter)
}

// RecordAssemblyStarted bumps the start counter and the active gauge.
func RecordAssemblyStarted() {
	startedCounter.Inc()
	activeGauge.Inc()
}

// RecordAssemblyCompleted bumps the completion counter for the cause
// and releases the active gauge.
func RecordAssemblyCompleted(cause string) {
	completedCounter.WithLabelValues(cause).Inc()
	activeGauge.Dec()
}

// RecordDeadlineLag observes how late a deadline completion landed.
func RecordDeadlineLag(lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	deadlineLag.Observe(lag.Seconds())
}

// RecordDeadlineReconciled counts a sweep-forced completion.
func RecordDeadlineReconciled() {
	reconciledCounter.Inc()
}
