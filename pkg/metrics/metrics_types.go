package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deconflict"

// Registry holds all metrics for the application
type Registry struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Store
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StorePoolInUse         prometheus.Gauge
	GraphNodesTotal        prometheus.Gauge
	GraphEdgesTotal        prometheus.Gauge

	// Workflow
	VendorRequestsTotal     *prometheus.CounterVec
	StoreGuardConflicts     prometheus.Counter
	ProjectsCreatedTotal    *prometheus.CounterVec
	NotificationsTotal      *prometheus.CounterVec
	VendorLockWaitDuration  prometheus.Histogram
	IntegrityViolationsLast prometheus.Gauge

	// System
	UptimeSeconds prometheus.Gauge
	GoRoutines    prometheus.Gauge

	registry  *prometheus.Registry
	startedAt time.Time
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry:  prometheus.NewRegistry(),
		startedAt: time.Now(),
	}

	r.initHTTPMetrics()
	r.initStoreMetrics()
	r.initWorkflowMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
