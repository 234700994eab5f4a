package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initWorkflowMetrics() {
	r.VendorRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_requests_total",
			Help:      "Vendor requests by outcome",
		},
		[]string{"outcome"},
	)

	r.StoreGuardConflicts = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_guard_conflicts_total",
			Help:      "Engagement writes rejected by the store because the vendor was already engaged",
		},
	)

	r.ProjectsCreatedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_created_total",
			Help:      "Project creation attempts by status",
		},
		[]string{"status"},
	)

	r.NotificationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Conflict notifications by reporter and status",
		},
		[]string{"reporter", "status"},
	)

	r.VendorLockWaitDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vendor_lock_wait_seconds",
			Help:      "Time spent waiting for the per-vendor request lock",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 5},
		},
	)

	r.IntegrityViolationsLast = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integrity_violations",
			Help:      "Violations found by the most recent integrity check",
		},
	)
}
