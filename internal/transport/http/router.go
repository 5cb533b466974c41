package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assent/internal/platform/health"
	"assent/internal/platform/metrics"
	"assent/internal/platform/middleware"
)

// NewRouter wires all public endpoints with the platform middleware stack.
// Authenticated routes sit behind the bearer-token middleware; the health
// probes, metrics, and the token-authenticated export download do not.
func NewRouter(
	logger *slog.Logger,
	consent *ConsentHandler,
	privacy *PrivacyHandler,
	healthHandler *health.Handler,
	validator middleware.TokenValidator,
	httpMetrics *metrics.Metrics,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.ClientMetadata)
	if httpMetrics != nil {
		r.Use(middleware.Latency(httpMetrics))
	}

	auth := middleware.RequireAuth(validator, logger)
	consent.Register(r, auth)
	privacy.Register(r, auth)

	healthHandler.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
