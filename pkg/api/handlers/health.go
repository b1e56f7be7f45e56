package handlers

import (
	"net/http"
)

// PoolState reports whether the service pool accepts calls.
type PoolState interface {
	Running() bool
	NumWorkers() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	pool PoolState
}

// NewHealthHandler creates a new health handler. pool may be nil, in which
// case the readiness probe always fails.
func NewHealthHandler(pool PoolState) *HealthHandler {
	return &HealthHandler{pool: pool}
}

// Liveness handles GET /health.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "fhasched",
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 503 Service Unavailable until the service pool is running.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("service pool not initialized"))
		return
	}
	if !h.pool.Running() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("service pool not running"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"workers": h.pool.NumWorkers(),
	}))
}
