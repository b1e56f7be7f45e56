package prometheus

import (
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// schedulerMetrics is the Prometheus implementation of fha.Metrics.
type schedulerMetrics struct {
	assigns   *prometheus.CounterVec
	completes *prometheus.CounterVec
	entries   prometheus.Gauge
	tableFull prometheus.Counter
	repairs   *prometheus.CounterVec
}

// NewSchedulerMetrics creates a Prometheus-backed fha.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSchedulerMetrics() fha.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	m := &schedulerMetrics{
		assigns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhasched_fha_assignments_total",
				Help: "Scheduling decisions by rule and operation kind",
			},
			[]string{"rule", "op"},
		),
		completes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhasched_fha_completions_total",
				Help: "Completed scheduled requests by operation kind",
			},
			[]string{"op"},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fhasched_fha_entries",
				Help: "Files currently tracked by the affinity table",
			},
		),
		tableFull: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fhasched_fha_table_full_total",
				Help: "Requests run on the receiving worker because the affinity table was full",
			},
		),
		repairs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhasched_fha_repairs_total",
				Help: "Bookkeeping inconsistencies detected and repaired",
			},
			[]string{"reason"},
		),
	}

	// Pre-create the label sets so every rule is exported from the start.
	for _, r := range fha.Rules() {
		for _, k := range []fha.OpKind{fha.Read, fha.Write} {
			m.assigns.WithLabelValues(r.String(), k.String())
		}
	}
	return m
}

func (m *schedulerMetrics) ObserveAssign(rule fha.Rule, kind fha.OpKind) {
	m.assigns.WithLabelValues(rule.String(), kind.String()).Inc()
}

func (m *schedulerMetrics) ObserveComplete(kind fha.OpKind) {
	m.completes.WithLabelValues(kind.String()).Inc()
}

func (m *schedulerMetrics) SetEntries(n int) {
	m.entries.Set(float64(n))
}

func (m *schedulerMetrics) ObserveTableFull() {
	m.tableFull.Inc()
}

func (m *schedulerMetrics) ObserveRepair(reason string) {
	m.repairs.WithLabelValues(reason).Inc()
}
