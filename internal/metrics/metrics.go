package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Assignment metrics
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_decisions_total",
			Help: "Total number of assignment decisions by outcome",
		},
		[]string{"outcome"},
	)

	AssignmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assignment_duration_seconds",
			Help:    "End-to-end assign() duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_escalations_total",
			Help: "Total number of escalated decisions by reason",
		},
		[]string{"reason"},
	)

	CandidateCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assignment_candidate_count",
			Help:    "Number of eligible candidates per decision",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
	)

	// Scheduler metrics
	SchedulerPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_scheduler_passes_total",
			Help: "Total number of scheduler passes by kind",
		},
		[]string{"kind"},
	)

	SchedulerDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_scheduler_dispatches_total",
			Help: "Total number of pool entries dispatched by result",
		},
		[]string{"result"},
	)

	// Pool metrics
	PoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assignment_pool_size",
			Help: "Number of bookings currently tracked by the pool",
		},
	)

	// Lock metrics
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assignment_lock_wait_seconds",
			Help:    "Named lock acquisition wait in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)

	LockTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assignment_lock_timeouts_total",
			Help: "Total number of named lock acquisition timeouts",
		},
	)

	// Assignment log metrics
	AssignmentLogBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assignment_log_buffered_records",
			Help: "Assignment log records held in the in-memory fallback buffer",
		},
	)
)
