package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/metrics"
	"github.com/alecgard/gabelle/internal/ratelimit"
	"github.com/alecgard/gabelle/internal/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Resolver      tokenResolver
	Directory     userDirectory // may be nil
	OCR           recognizer
	Recorder      usageRecorder
	UsageStore    usageStore
	Sessions      session.Store
	Limiter       *ratelimit.Limiter
	Metrics       *metrics.Metrics // may be nil
	AdminKey      string
	CORSOrigins   []string
	MaxUploadSize int64
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.CORSOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(httpMetricsMiddleware(deps.Metrics))
	}

	// Handlers.
	landing := newLandingHandler(deps.Resolver, deps.Directory)
	documents := newDocumentsHandler(deps.OCR, deps.Recorder, deps.Sessions, deps.MaxUploadSize)
	usage := newUsageHandler(deps.UsageStore)

	var authMetrics auth.Metrics
	if deps.Metrics != nil {
		documents.setMetrics(deps.Metrics)
		authMetrics = deps.Metrics
	}

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Well-known manifest.
	r.Get("/.well-known/gabelle.json", WellKnownHandler)

	// Prometheus exposition.
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Buyer-facing routes: session cookie plus per-session rate limiting.
	r.Route("/api/v1", func(br chi.Router) {
		br.Use(sessionMiddleware)
		if deps.Limiter != nil {
			onReject := []func(){}
			if deps.Metrics != nil {
				onReject = append(onReject, deps.Metrics.IncRateLimitRejection)
			}
			br.Use(ratelimit.Middleware(deps.Limiter, func(req *http.Request) string {
				return SessionKeyFromContext(req.Context())
			}, onReject...))
		}

		br.Get("/landing", landing.Landing)
		br.Get("/landing/details", landing.Details)
		br.Post("/documents", documents.Submit)
	})

	// Admin routes (require admin key).
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(auth.AdminMiddleware(deps.AdminKey, authMetrics))

		ar.Get("/usage", usage.GetSummary)
		ar.Get("/usage/records", usage.ListRecords)
		ar.Get("/usage/records/unprocessed", usage.ListUnprocessed)
		ar.Post("/usage/records/{id}/processed", usage.MarkProcessed)

		if deps.Metrics != nil {
			ar.Get("/metrics", deps.Metrics.Handler())
		}
	})

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// httpMetricsMiddleware records request counts, latency, and sizes against
// the chi route pattern rather than the raw path.
func httpMetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.ObserveHTTPRequest(
				r.Method, pattern, ww.Status(),
				time.Since(start).Seconds(),
				float64(r.ContentLength), float64(ww.BytesWritten()),
			)
		})
	}
}
