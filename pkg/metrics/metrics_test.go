package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return m.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	if r.HTTPRequestsTotal == nil || r.StoreOperationsTotal == nil || r.VendorRequestsTotal == nil {
		t.Fatal("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Fatal("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.RecordVendorRequest("assigned")

	if got := counterValue(t, b.VendorRequestsTotal.WithLabelValues("assigned")); got != 0 {
		t.Errorf("second registry saw %v requests", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("POST", "/vendor-requests", "201", 100*time.Millisecond)
	r.RecordHTTPRequest("POST", "/vendor-requests", "201", 50*time.Millisecond)
	r.RecordHTTPRequest("POST", "/vendor-requests", "409", 50*time.Millisecond)

	if got := counterValue(t, r.HTTPRequestsTotal.WithLabelValues("POST", "/vendor-requests", "201")); got != 2 {
		t.Errorf("201 counter = %v, want 2", got)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	r := NewRegistry()
	r.RecordStoreOperation("embedded", "active_engagement", "success", time.Millisecond)
	r.RecordStoreOperation("embedded", "active_engagement", "error", time.Millisecond)

	if got := counterValue(t, r.StoreOperationsTotal.WithLabelValues("embedded", "active_engagement", "error")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestRecordOutcomes(t *testing.T) {
	r := NewRegistry()
	r.RecordVendorRequest("assigned")
	r.RecordVendorRequest("conflict_notified")
	r.RecordVendorRequest("conflict_notified")
	r.RecordProjectCreated(true)
	r.RecordProjectCreated(false)
	r.RecordNotification("log", nil)
	r.RecordNotification("nng", errors.New("closed"))

	if got := counterValue(t, r.VendorRequestsTotal.WithLabelValues("conflict_notified")); got != 2 {
		t.Errorf("conflict_notified = %v, want 2", got)
	}
	if got := counterValue(t, r.ProjectsCreatedTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("project errors = %v, want 1", got)
	}
	if got := counterValue(t, r.NotificationsTotal.WithLabelValues("nng", "error")); got != 1 {
		t.Errorf("nng errors = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	r := NewRegistry()
	r.UpdateGraphSize(12, 7)
	r.UpdateSystemMetrics()

	if got := gaugeValue(t, r.GraphNodesTotal); got != 12 {
		t.Errorf("nodes = %v", got)
	}
	if got := gaugeValue(t, r.GraphEdgesTotal); got != 7 {
		t.Errorf("edges = %v", got)
	}
	if got := gaugeValue(t, r.GoRoutines); got < 1 {
		t.Errorf("goroutines = %v", got)
	}
}

func TestMetricNamesAreNamespaced(t *testing.T) {
	r := NewRegistry()
	r.RecordVendorRequest("assigned")
	r.RecordHTTPRequest("GET", "/", "200", time.Millisecond)

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			t.Errorf("metric %s missing namespace", mf.GetName())
		}
		if mf.GetName() == "deconflict_vendor_requests_total" {
			found = true
		}
	}
	if !found {
		t.Error("deconflict_vendor_requests_total not exported")
	}
}
