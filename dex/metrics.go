package dex

import (
	"time"

	"github.com/defistate/sandman-swap/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the Prometheus metrics for the execution environment.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	sequence          prometheus.Gauge
	exchanges         prometheus.Gauge
	laggingDropped    prometheus.Counter
}

// NewMetrics creates and registers the metrics for the execution environment.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_operations_total",
			Help: "Total number of operations executed, labeled by operation and result.",
		}, []string{"op", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_operation_duration_seconds",
			Help:    "Time taken to execute an operation, including lock wait.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dex_sequence",
			Help: "Sequence number of the last committed operation.",
		}),
		exchanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dex_exchanges",
			Help: "Number of registered exchanges.",
		}),
		laggingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dex_state_subscribers_dropped_total",
			Help: "State subscribers dropped because their channel was full at commit time.",
		}),
	}
	reg.MustRegister(m.operationsTotal, m.operationDuration, m.sequence, m.exchanges, m.laggingDropped)
	return m
}

// observe records the outcome of one operation. Rejections are labeled with their
// error kind so failed swaps can be told apart from failed deposits.
func (m *Metrics) observe(op string, err error, start time.Time) {
	m.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = types.Kind(err)
	}
	m.operationsTotal.WithLabelValues(op, result).Inc()
}
