package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/pkg/api/handlers"
	"github.com/marmos91/fhasched/pkg/metrics"
)

// Backend is what the admin API needs from the running service.
// *svcpool.Pool satisfies it through Scheduler().
type Backend interface {
	handlers.PoolState
	handlers.PoolStats
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /debug/fha?limit=N - Scheduler statistics dump
//   - GET /tunables - Current scheduler tunables
//   - PUT /tunables - Replace scheduler tunables
//   - GET /metrics - Prometheus metrics (404 while metrics are disabled)
func NewRouter(pool Backend, sched handlers.Scheduler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(pool)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if sched != nil {
		fhaHandler := handlers.NewFHAHandler(sched, pool)
		r.Get("/debug/fha", fhaHandler.Debug)
		r.Route("/tunables", func(r chi.Router) {
			r.Get("/", fhaHandler.GetTunables)
			r.Put("/", fhaHandler.SetTunables)
		})
	}

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs requests using the internal logger: start at DEBUG,
// completion at INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyAddr, r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			logger.KeyPath, r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(time.Since(start)),
		)
	})
}
