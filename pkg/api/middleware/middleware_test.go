package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestBodySizeLimit_RejectsLargeContentLength(t *testing.T) {
	handler := BodySizeLimit(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for oversized request")
	}))

	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	req.ContentLength = 1000
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
}

func TestBodySizeLimit_LimitsActualBody(t *testing.T) {
	handler := BodySizeLimit(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 100)))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
}

func TestPanicRecovery_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	handler := PanicRecovery(logging.NewJSONLogger(&buf, logging.DebugLevel))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("secret detail")
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/boom", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret detail") {
		t.Error("panic value leaked to client")
	}
	if !strings.Contains(buf.String(), "secret detail") {
		t.Error("panic value was not logged")
	}
}

func TestRequestID_GeneratesNew(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Fatal("expected generated request id in context")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context %q", got, seen)
	}
}

func TestRequestID_SanitizesClientValue(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc<script>-1."+strings.Repeat("z", 100))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if strings.ContainsAny(seen, "<>") {
		t.Errorf("unsanitized id %q", seen)
	}
	if !strings.HasPrefix(seen, "abcscript-1.") {
		t.Errorf("unexpected id %q", seen)
	}
	if len(seen) > maxRequestIDLength {
		t.Errorf("id longer than %d: %d", maxRequestIDLength, len(seen))
	}
}

func TestGetRequestID_NoContext(t *testing.T) {
	if id := GetRequestID(httptest.NewRequest("GET", "/", nil)); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

func TestLogging_LevelsByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusConflict, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}), RequestID(), Logging(logging.NewJSONLogger(&buf, logging.DebugLevel)))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/vendor-requests", nil))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
		}
		if entry["level"] != tt.level {
			t.Errorf("status %d logged at %v, want %s", tt.status, entry["level"], tt.level)
		}
		fields := entry["fields"].(map[string]any)
		if fields["status"] != float64(tt.status) {
			t.Errorf("status field = %v", fields["status"])
		}
		if fields["request_id"] == "" || fields["request_id"] == nil {
			t.Error("missing request_id field")
		}
	}
}

func TestMetrics_LabelsByPattern(t *testing.T) {
	reg := metrics.NewRegistry()
	mux := http.NewServeMux()
	mux.Handle("GET /vendors/{name}/engagement", okHandler())
	handler := Metrics(reg)(mux)

	for _, path := range []string{"/vendors/acme/engagement", "/vendors/globex/engagement", "/nope"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	counts := map[string]float64{}
	families, err := reg.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "deconflict_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[labelValue(m, "path")+" "+labelValue(m, "status")] += m.GetCounter().GetValue()
		}
	}

	if counts["GET /vendors/{name}/engagement 200"] != 2 {
		t.Errorf("pattern count = %v, all = %v", counts["GET /vendors/{name}/engagement 200"], counts)
	}
	if counts[unmatchedRoute+" 404"] != 1 {
		t.Errorf("unmatched count = %v, all = %v", counts[unmatchedRoute+" 404"], counts)
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://ops.example.com"})(okHandler())

	req := httptest.NewRequest("GET", "/projects", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://ops.example.com" {
		t.Error("allowed origin not echoed")
	}

	req = httptest.NewRequest("OPTIONS", "/projects", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("preflight from unknown origin: got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin must not be allowed")
	}

	wildcard := CORS([]string{"*"})(okHandler())
	req = httptest.NewRequest("OPTIONS", "/projects", nil)
	req.Header.Set("Origin", "https://any.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	wildcard.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("wildcard preflight: got %d", rr.Code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler(), mw("outer"), mw("inner")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("order = %v", order)
	}
}
