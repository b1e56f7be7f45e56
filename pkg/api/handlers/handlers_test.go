package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/svcpool"
)

type fakePool struct {
	running bool
	workers int
}

func (p *fakePool) Running() bool   { return p.running }
func (p *fakePool) NumWorkers() int { return p.workers }
func (p *fakePool) Stats() svcpool.PoolStats {
	return svcpool.PoolStats{Workers: make([]svcpool.WorkerStats, p.workers)}
}

type fakeScheduler struct {
	tun       fha.Tunables
	entries   []fha.EntrySnapshot
	lastLimit int
}

func (s *fakeScheduler) Snapshot(limit int) ([]fha.EntrySnapshot, int) {
	s.lastLimit = limit
	n := len(s.entries)
	if limit > 0 && limit < n {
		return s.entries[:limit], n
	}
	return s.entries, n
}

func (s *fakeScheduler) Stats() fha.Stats {
	return fha.Stats{Entries: len(s.entries), Assigns: map[string]uint64{"growth": 3}}
}

func (s *fakeScheduler) Tunables() fha.Tunables { return s.tun }

func (s *fakeScheduler) UpdateTunables(fn func(*fha.Tunables)) (fha.Tunables, error) {
	t := s.tun
	fn(&t)
	if err := t.Validate(); err != nil {
		return s.tun, err
	}
	s.tun = t
	return t, nil
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}
	if data["service"] != "fhasched" {
		t.Errorf("Expected service 'fhasched', got '%v'", data["service"])
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		pool       PoolState
		wantStatus int
		wantError  string
	}{
		{"no pool", nil, http.StatusServiceUnavailable, "service pool not initialized"},
		{"stopped pool", &fakePool{running: false, workers: 4}, http.StatusServiceUnavailable, "service pool not running"},
		{"running pool", &fakePool{running: true, workers: 4}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.pool)
			w := httptest.NewRecorder()

			handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			resp := decodeResponse(t, w)
			if resp.Error != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, resp.Error)
			}
		})
	}
}

func TestDebug_Limit(t *testing.T) {
	sched := &fakeScheduler{tun: fha.DefaultTunables()}
	for i := 0; i < 5; i++ {
		sched.entries = append(sched.entries, fha.EntrySnapshot{Key: fha.Key(i), Reads: 1, Workers: []int{i}})
	}
	handler := NewFHAHandler(sched, &fakePool{running: true, workers: 2})

	w := httptest.NewRecorder()
	handler.Debug(w, httptest.NewRequest("GET", "/debug/fha?limit=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if sched.lastLimit != 2 {
		t.Errorf("Expected limit 2 to reach the scheduler, got %d", sched.lastLimit)
	}

	var body struct {
		Data DebugResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Data.Total != 5 {
		t.Errorf("Expected total 5, got %d", body.Data.Total)
	}
	if len(body.Data.Entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(body.Data.Entries))
	}
	if body.Data.Pool == nil || len(body.Data.Pool.Workers) != 2 {
		t.Errorf("Expected pool stats with 2 workers, got %+v", body.Data.Pool)
	}
	if body.Data.Stats.Assigns["growth"] != 3 {
		t.Errorf("Expected 3 growth assigns, got %d", body.Data.Stats.Assigns["growth"])
	}
}

func TestDebug_BadLimit(t *testing.T) {
	handler := NewFHAHandler(&fakeScheduler{}, nil)

	for _, raw := range []string{"abc", "-1"} {
		w := httptest.NewRecorder()
		handler.Debug(w, httptest.NewRequest("GET", "/debug/fha?limit="+raw, nil))

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected status %d, got %d", raw, http.StatusBadRequest, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != ContentTypeProblemJSON {
			t.Errorf("limit=%s: expected problem content type, got %q", raw, ct)
		}
	}
}

func TestSetTunables_PartialUpdate(t *testing.T) {
	sched := &fakeScheduler{tun: fha.DefaultTunables()}
	handler := NewFHAHandler(sched, nil)

	body := strings.NewReader(`{"max_threads_per_file": 2, "enabled": false}`)
	w := httptest.NewRecorder()
	handler.SetTunables(w, httptest.NewRequest("PUT", "/tunables", body))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if sched.tun.MaxThreadsPerFile != 2 {
		t.Errorf("Expected max_threads_per_file 2, got %d", sched.tun.MaxThreadsPerFile)
	}
	if sched.tun.Enabled {
		t.Error("Expected scheduling to be disabled")
	}
	if sched.tun.BinShift != fha.DefaultBinShift {
		t.Errorf("Expected bin_shift to keep %d, got %d", fha.DefaultBinShift, sched.tun.BinShift)
	}
}

func TestSetTunables_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed", `{"max_threads_per_file":`, http.StatusBadRequest},
		{"unknown field", `{"threads": 2}`, http.StatusBadRequest},
		{"negative limit", `{"max_reqs_per_thread": -1}`, http.StatusUnprocessableEntity},
		{"bin shift too large", fmt.Sprintf(`{"bin_shift": %d}`, 64), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{tun: fha.DefaultTunables()}
			handler := NewFHAHandler(sched, nil)
			w := httptest.NewRecorder()

			handler.SetTunables(w, httptest.NewRequest("PUT", "/tunables", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if sched.tun != fha.DefaultTunables() {
				t.Errorf("Tunables changed on rejected update: %+v", sched.tun)
			}
		})
	}
}

func TestSetTunables_ConcurrentUpdatesKeepEveryField(t *testing.T) {
	sched, err := fha.New(nil, fha.DefaultTunables())
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	handler := NewFHAHandler(sched, nil)

	bodies := []string{
		`{"max_threads_per_file": 2}`,
		`{"max_reqs_per_thread": 7}`,
		`{"max_entries": 100}`,
		`{"idle_scan_limit": 3}`,
		`{"bin_shift": 20}`,
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		for _, body := range bodies {
			wg.Add(1)
			go func(body string) {
				defer wg.Done()
				w := httptest.NewRecorder()
				handler.SetTunables(w, httptest.NewRequest("PUT", "/tunables", strings.NewReader(body)))
				if w.Code != http.StatusOK {
					t.Errorf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
				}
			}(body)
		}
	}
	wg.Wait()

	got := sched.Tunables()
	want := fha.Tunables{
		Enabled:           true,
		BinShift:          20,
		MaxThreadsPerFile: 2,
		MaxReqsPerThread:  7,
		MaxEntries:        100,
		IdleScanLimit:     3,
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}
