package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for engine execution. Attach with
// WithMetrics; a nil Metrics disables collection.
//
// Exposed series (namespace "newsgraph"):
//
//	newsgraph_node_executions_total{node_id,status}   counter
//	newsgraph_node_latency_seconds{node_id}           histogram
//	newsgraph_node_retries_total{node_id}             counter
//	newsgraph_interrupts_total                        counter
//	newsgraph_checkpoint_writes_total                 counter
//	newsgraph_supersteps_total                        counter
//	newsgraph_inflight_nodes                          gauge
type Metrics struct {
	executions *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	interrupts prometheus.Counter
	writes     prometheus.Counter
	supersteps prometheus.Counter
	inflight   prometheus.Gauge
}

// NewMetrics registers the engine metrics with reg and returns the
// collector. Use prometheus.DefaultRegisterer for process-wide metrics or a
// private registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsgraph",
			Name:      "node_executions_total",
			Help:      "Node executions by terminal status (success, failed, interrupted).",
		}, []string{"node_id", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "newsgraph",
			Name:      "node_latency_seconds",
			Help:      "Wall-clock node execution time including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"node_id"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsgraph",
			Name:      "node_retries_total",
			Help:      "Retry attempts beyond the first, per node.",
		}, []string{"node_id"}),
		interrupts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "newsgraph",
			Name:      "interrupts_total",
			Help:      "Runs suspended awaiting an external decision.",
		}),
		writes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "newsgraph",
			Name:      "checkpoint_writes_total",
			Help:      "Checkpoints durably written.",
		}),
		supersteps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "newsgraph",
			Name:      "supersteps_total",
			Help:      "Supersteps committed across all runs.",
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsgraph",
			Name:      "inflight_nodes",
			Help:      "Nodes currently executing.",
		}),
	}
}

func (m *Metrics) observeNode(nodeID, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(nodeID, status).Inc()
	m.latency.WithLabelValues(nodeID).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRetry(nodeID string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) observeInterrupt() {
	if m == nil {
		return
	}
	m.interrupts.Inc()
}

func (m *Metrics) observeCheckpoint() {
	if m == nil {
		return
	}
	m.writes.Inc()
}

func (m *Metrics) observeSuperstep() {
	if m == nil {
		return
	}
	m.supersteps.Inc()
}

func (m *Metrics) nodeStarted() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) nodeFinished() {
	if m != nil {
		m.inflight.Dec()
	}
}
