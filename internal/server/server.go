// Package server implements the HTTP transport layer for the Zephyr gateway.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	weather "github.com/eugener/zephyr/internal"
	"github.com/eugener/zephyr/internal/app"
	"github.com/eugener/zephyr/internal/ratelimit"
	"github.com/eugener/zephyr/internal/storage"
	"github.com/eugener/zephyr/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// LookupRecorder records handled lookups asynchronously.
type LookupRecorder interface {
	Record(weather.LookupRecord)
}

// Prober checks connectivity to the upstream weather provider.
type Prober interface {
	Probe(ctx context.Context) (int, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Lookup         *app.LookupService
	History        storage.LookupStore // nil = admin history queries disabled
	ReadyCheck     ReadyChecker        // nil = always ready (for tests)
	Recorder       LookupRecorder      // nil = no history recording
	RateLimiter    *ratelimit.Registry // nil = no rate limiting
	Metrics        *telemetry.Metrics  // nil = no metrics collection
	MetricsHandler http.Handler        // nil = /metrics not mounted
	Prober         Prober              // nil = health probe disabled
	AdminKey       string              // empty = admin endpoints disabled
	AllowedOrigins []string            // nil = CORS headers not emitted
	Version        string
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{
		deps:    deps,
		started: time.Now(),
		probes:  newProbeCache(),
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if len(deps.AllowedOrigins) > 0 {
		r.Use(s.cors)
	}

	// System endpoints (no auth, no rate limit)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/health", s.handleHealth)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Client-facing API
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/weather", s.handleWeather)
	})

	// Admin endpoints
	if deps.AdminKey != "" {
		r.Group(func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Delete("/admin/cache", s.handleCacheClear)
			r.Get("/admin/lookups", s.handleLookupList)
		})
	}

	return r
}

type server struct {
	deps    Deps
	started time.Time
	probes  *probeCache
}
