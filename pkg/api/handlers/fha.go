package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/marmos91/fhasched/internal/logger"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/svcpool"
)

// Scheduler is the subset of *fha.Scheduler served by the API.
type Scheduler interface {
	Snapshot(limit int) ([]fha.EntrySnapshot, int)
	Stats() fha.Stats
	Tunables() fha.Tunables
	UpdateTunables(fn func(*fha.Tunables)) (fha.Tunables, error)
}

// PoolStats supplies the per-worker view shown next to the scheduler dump.
type PoolStats interface {
	Stats() svcpool.PoolStats
}

// DebugResponse is the body of GET /debug/fha.
type DebugResponse struct {
	Tunables fha.Tunables        `json:"tunables"`
	Stats    fha.Stats           `json:"stats"`
	Total    int                 `json:"total"`
	Entries  []fha.EntrySnapshot `json:"entries"`
	Pool     *svcpool.PoolStats  `json:"pool,omitempty"`
}

// FHAHandler serves the scheduler statistics dump and the live tunables.
type FHAHandler struct {
	sched Scheduler
	pool  PoolStats
}

// NewFHAHandler creates a handler. pool may be nil.
func NewFHAHandler(sched Scheduler, pool PoolStats) *FHAHandler {
	return &FHAHandler{sched: sched, pool: pool}
}

// Debug handles GET /debug/fha?limit=N.
func (h *FHAHandler) Debug(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, total := h.sched.Snapshot(limit)
	resp := DebugResponse{
		Tunables: h.sched.Tunables(),
		Stats:    h.sched.Stats(),
		Total:    total,
		Entries:  entries,
	}
	if h.pool != nil {
		ps := h.pool.Stats()
		resp.Pool = &ps
	}

	writeJSON(w, http.StatusOK, okResponse(resp))
}

// GetTunables handles GET /tunables.
func (h *FHAHandler) GetTunables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(h.sched.Tunables()))
}

// tunablesPatch is the body of PUT /tunables. Nil fields are left unchanged.
type tunablesPatch struct {
	Enabled           *bool `json:"enabled"`
	BinShift          *uint `json:"bin_shift"`
	MaxThreadsPerFile *int  `json:"max_threads_per_file"`
	MaxReqsPerThread  *int  `json:"max_reqs_per_thread"`
	MaxEntries        *int  `json:"max_entries"`
	IdleScanLimit     *int  `json:"idle_scan_limit"`
}

func (p tunablesPatch) apply(t *fha.Tunables) {
	if p.Enabled != nil {
		t.Enabled = *p.Enabled
	}
	if p.BinShift != nil {
		t.BinShift = *p.BinShift
	}
	if p.MaxThreadsPerFile != nil {
		t.MaxThreadsPerFile = *p.MaxThreadsPerFile
	}
	if p.MaxReqsPerThread != nil {
		t.MaxReqsPerThread = *p.MaxReqsPerThread
	}
	if p.MaxEntries != nil {
		t.MaxEntries = *p.MaxEntries
	}
	if p.IdleScanLimit != nil {
		t.IdleScanLimit = *p.IdleScanLimit
	}
}

// SetTunables handles PUT /tunables. Fields missing from the body keep their
// current value; the merge happens atomically in the scheduler.
func (h *FHAHandler) SetTunables(w http.ResponseWriter, r *http.Request) {
	var patch tunablesPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		BadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.sched.UpdateTunables(patch.apply)
	if err != nil {
		if errors.Is(err, fha.ErrInvalidTunables) {
			UnprocessableEntity(w, err.Error())
			return
		}
		logger.Error("Failed to update tunables", logger.Err(err))
		InternalServerError(w, "Failed to update tunables")
		return
	}

	writeJSON(w, http.StatusOK, okResponse(t))
}
