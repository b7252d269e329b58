package middleware

import (
	"net/http"

	"github.com/alanyoungcy/mexcsniper/internal/metrics"
)

// Metrics counts every request by method, matched route pattern and status.
// Unrouted requests share one label so arbitrary paths cannot blow up the
// series count.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveAPI(r.Method, route, rw.statusCode)
		})
	}
}
