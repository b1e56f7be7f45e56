package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enableMetrics(t *testing.T) {
	t.Helper()
	metrics.InitRegistry()
	t.Cleanup(metrics.Disable)
}

func TestConstructors_DisabledReturnNil(t *testing.T) {
	metrics.Disable()
	assert.Nil(t, NewSchedulerMetrics())
	assert.Nil(t, NewPoolMetrics())
}

func TestSchedulerMetrics(t *testing.T) {
	enableMetrics(t)
	m := NewSchedulerMetrics().(*schedulerMetrics)

	m.ObserveAssign(fha.RuleLocality, fha.Read)
	m.ObserveAssign(fha.RuleLocality, fha.Read)
	m.ObserveAssign(fha.RuleWriteFunnel, fha.Write)
	m.ObserveComplete(fha.Read)
	m.SetEntries(7)
	m.ObserveTableFull()
	m.ObserveRepair("counter underflow")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.assigns.WithLabelValues("locality", "read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assigns.WithLabelValues("write_funnel", "write")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.assigns.WithLabelValues("overflow", "read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completes.WithLabelValues("read")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.entries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tableFull))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.repairs.WithLabelValues("counter underflow")))

	// Every rule/op pair is exported even before it is used.
	n, err := testutil.GatherAndCount(metrics.GetRegistry(), "fhasched_fha_assignments_total")
	require.NoError(t, err)
	assert.Equal(t, len(fha.Rules())*2, n)
}

func TestPoolMetrics(t *testing.T) {
	enableMetrics(t)
	m := NewPoolMetrics().(*poolMetrics)

	m.RecordDispatch("READ", true)
	m.RecordDispatch("READ", false)
	m.RecordCall("READ", 2*time.Millisecond, nil)
	m.RecordCall("WRITE", time.Millisecond, errors.New("x"))
	m.RecordRejected("stopped")
	m.SetQueueDepth(3)
	m.SetWorkerInFlight(1, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("READ", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("READ", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("WRITE", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("stopped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.inFlight.WithLabelValues("1")))

	n, err := testutil.GatherAndCount(metrics.GetRegistry(), "fhasched_pool_call_duration_milliseconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
