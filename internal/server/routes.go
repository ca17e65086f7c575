package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/ipusegment/internal/metrics"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics, when set, exposes GET /metrics and records request metrics.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /segment", h.Segment)
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
		middlewares = append(middlewares, MetricsMiddleware(cfg.Metrics))
	}
	middlewares = append(middlewares, CORSMiddleware(cfg.AllowedOrigins))

	return ChainMiddleware(middlewares...)(mux)
}
