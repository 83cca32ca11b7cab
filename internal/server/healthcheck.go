package server

import (
	"fmt"
	"net/http"
)

// HealthPath is answered with 200 "ok" before any routing happens.
const HealthPath = "/health"

// HealthCheck is the health check handler.
type HealthCheck struct{}

// Handler answers GET /health and passes everything else to h.
func (hc HealthCheck) Handler(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if IsHealthCheckRequest(r) {
			hc.ServeHTTP(w, r)

			return
		}

		h.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}

// ServeHTTP writes the health check response.
func (hc HealthCheck) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// IsHealthCheckRequest reports whether r is GET /health.
func IsHealthCheckRequest(r *http.Request) bool {
	return r.Method == http.MethodGet && r.URL.Path == HealthPath
}
