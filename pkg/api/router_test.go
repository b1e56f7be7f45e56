package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fhasched/internal/adapter/nfs/fhinfo"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/metrics"
	"github.com/marmos91/fhasched/pkg/svcpool"
)

func newTestPool(t *testing.T) *svcpool.Pool {
	t.Helper()
	cfg := svcpool.DefaultConfig()
	cfg.Workers = 2
	p, err := svcpool.New(cfg, func(ctx context.Context, req *svcpool.Request) error { return nil })
	require.NoError(t, err)
	p.Start()
	t.Cleanup(func() { _ = p.Stop(5 * time.Second) })
	return p
}

func TestRouter_Health(t *testing.T) {
	p := newTestPool(t)
	srv := httptest.NewServer(NewRouter(p, p.Scheduler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_DebugReflectsScheduledCalls(t *testing.T) {
	p := newTestPool(t)
	srv := httptest.NewServer(NewRouter(p, p.Scheduler()))
	defer srv.Close()

	args, err := fhinfo.EncodeArgs(fhinfo.ProcRead, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0, 4096)
	require.NoError(t, err)
	res, err := p.Do(context.Background(), fhinfo.ProcRead, args)
	require.NoError(t, err)
	require.NoError(t, res.Err)

	resp, err := http.Get(srv.URL + "/debug/fha?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
		Data   struct {
			Total int       `json:"total"`
			Stats fha.Stats `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	// The call has completed, so its entry is gone again.
	assert.Equal(t, 0, body.Data.Total)
	assert.Equal(t, uint64(1), body.Data.Stats.EntriesCreated)
	assert.Equal(t, uint64(1), body.Data.Stats.Completes)
}

func TestRouter_PutTunables(t *testing.T) {
	p := newTestPool(t)
	srv := httptest.NewServer(NewRouter(p, p.Scheduler()))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/tunables", strings.NewReader(`{"bin_shift": 12}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint(12), p.Scheduler().Tunables().BinShift)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	metrics.Disable()
	p := newTestPool(t)
	srv := httptest.NewServer(NewRouter(p, p.Scheduler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_MetricsEnabled(t *testing.T) {
	metrics.InitRegistry()
	t.Cleanup(metrics.Disable)

	p := newTestPool(t)
	srv := httptest.NewServer(NewRouter(p, p.Scheduler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIConfig_Defaults(t *testing.T) {
	var cfg APIConfig
	assert.True(t, cfg.IsEnabled())

	cfg.ApplyDefaults()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
	assert.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)

	disabled := false
	cfg = APIConfig{Enabled: &disabled}
	assert.False(t, cfg.IsEnabled())
}
