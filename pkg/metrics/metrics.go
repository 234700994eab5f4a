package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordStoreOperation records one call through the store client
func (r *Registry) RecordStoreOperation(backend, operation, status string, duration time.Duration) {
	r.StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	r.StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordVendorRequest counts a finished vendor request by outcome label
func (r *Registry) RecordVendorRequest(outcome string) {
	r.VendorRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordProjectCreated counts a project creation attempt
func (r *Registry) RecordProjectCreated(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	r.ProjectsCreatedTotal.WithLabelValues(status).Inc()
}

// RecordNotification counts a conflict report delivered (or not) by a reporter
func (r *Registry) RecordNotification(reporter string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.NotificationsTotal.WithLabelValues(reporter, status).Inc()
}

// UpdateGraphSize sets the embedded graph gauges
func (r *Registry) UpdateGraphSize(nodes, edges uint64) {
	r.GraphNodesTotal.Set(float64(nodes))
	r.GraphEdgesTotal.Set(float64(edges))
}

// UpdateSystemMetrics refreshes uptime and goroutine gauges
func (r *Registry) UpdateSystemMetrics() {
	r.UptimeSeconds.Set(time.Since(r.startedAt).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
}
