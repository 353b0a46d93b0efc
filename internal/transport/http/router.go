// Package httptransport assembles the public HTTP surface: middleware chain,
// domain handlers, health and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wishwell/internal/platform/metrics"
	"wishwell/internal/platform/middleware"
	"wishwell/pkg/platform/httputil"
)

// Registrar is anything that can mount routes; domain handlers implement it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the middleware chain and mounts every registered handler.
// rateLimit is applied to the JSON API group only; pass nil to disable it.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, checks map[string]HealthCheck, rateLimit func(http.Handler) http.Handler, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(m))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthHandler(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		if rateLimit != nil {
			r.Use(rateLimit)
		}
		for _, reg := range registrars {
			reg.Register(r)
		}
	})

	return r
}

// healthHandler reports per-dependency status; any failing check turns the
// response 503 so load balancers stop routing here.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			} else {
				body[name] = "ok"
			}
		}
		httputil.WriteJSON(w, status, body)
	}
}
