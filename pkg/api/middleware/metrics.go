package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
)

// unmatchedRoute labels requests no route pattern claimed, so scanners
// cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records request counts, latency and in-flight requests. Requests
// are labelled with the mux pattern that served them.
func Metrics(reg *metrics.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reg == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reg.HTTPRequestsInFlight.Inc()
			defer reg.HTTPRequestsInFlight.Dec()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			reg.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}
