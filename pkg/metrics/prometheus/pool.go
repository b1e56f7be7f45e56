package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/fhasched/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// poolMetrics is the Prometheus implementation of metrics.PoolMetrics.
type poolMetrics struct {
	dispatched   *prometheus.CounterVec
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	rejected     *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	inFlight     *prometheus.GaugeVec
}

// NewPoolMetrics creates a Prometheus-backed PoolMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPoolMetrics() metrics.PoolMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &poolMetrics{
		dispatched: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhasched_pool_dispatched_total",
				Help: "Calls dispatched, split by whether they were forwarded to another worker",
			},
			[]string{"procedure", "forwarded"},
		),
		calls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhasched_pool_calls_total",
				Help: "Calls executed by procedure and outcome",
			},
			[]string{"procedure", "status"}, // status: "ok", "error"
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fhasched_pool_call_duration_milliseconds",
				Help: "Time spent in call handlers in milliseconds",
				Buckets: []float64{
					0.05, // 50us - metadata hits
					0.1,
					0.5,
					1,
					5,
					10,
					50,
					100,
					500, // slow disk
				},
			},
			[]string{"procedure"},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhasched_pool_rejected_total",
				Help: "Calls refused by the pool",
			},
			[]string{"reason"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fhasched_pool_queue_depth",
				Help: "Calls waiting in the shared ingress queue",
			},
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fhasched_pool_worker_in_flight",
				Help: "Queued plus executing calls per worker",
			},
			[]string{"worker"},
		),
	}
}

func (m *poolMetrics) RecordDispatch(procedure string, forwarded bool) {
	m.dispatched.WithLabelValues(procedure, strconv.FormatBool(forwarded)).Inc()
}

func (m *poolMetrics) RecordCall(procedure string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.calls.WithLabelValues(procedure, status).Inc()
	m.callDuration.WithLabelValues(procedure).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *poolMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *poolMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *poolMetrics) SetWorkerInFlight(worker int, n int) {
	m.inFlight.WithLabelValues(strconv.Itoa(worker)).Set(float64(n))
}
