package middleware

import (
	"net/http"
	"strconv"
	"time"

	"assent/internal/platform/metrics"
)

// Latency records per-endpoint latency and request counts.
func Latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			m.ObserveEndpointLatency(r.URL.Path, time.Since(start).Seconds())
			m.IncRequest(r.Method, strconv.Itoa(wrapped.statusCode/100)+"xx")
			if wrapped.statusCode == http.StatusUnauthorized {
				m.IncAuthFailures()
			}
		})
	}
}
