package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector engine metrics collector
type MetricsCollector struct {
	messageTotal    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	dedupHitTotal   prometheus.Counter
	sweepTotal      prometheus.Counter
	sweepRequeued   prometheus.Counter
	expiredTotal    prometheus.Counter
	purgedTotal     prometheus.Counter
	conflictTotal   prometheus.Counter
	partitionDepth  *prometheus.GaugeVec
	submitTotal     *prometheus.CounterVec
}

// NewMetricsCollector creates the engine metrics collector
func NewMetricsCollector(namespace string) *MetricsCollector {
	if namespace == "" {
		namespace = "peermarket"
	}

	return &MetricsCollector{
		messageTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Messages handled by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		handlerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Action handler duration by kind",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		dedupHitTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_hits_total",
				Help:      "Duplicate deliveries short-circuited by the dedup cache",
			},
		),
		sweepTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_sweeps_total",
				Help:      "Retry sweep ticks executed",
			},
		),
		sweepRequeued: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_requeued_total",
				Help:      "Waiting messages re-offered to handlers by sweeps",
			},
		),
		expiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_expired_total",
				Help:      "Waiting messages failed because their expiration passed",
			},
		),
		purgedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_purged_total",
				Help:      "Processed messages deleted past their retention period",
			},
		),
		conflictTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_conflicts_total",
				Help:      "Optimistic write conflicts observed by handlers",
			},
		),
		partitionDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "partition_depth",
				Help:      "Pending messages per scheduler partition",
			},
			[]string{"partition"},
		),
		submitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_submits_total",
				Help:      "Outbound transport submissions by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveMessage records a processing outcome for a message kind
func (mc *MetricsCollector) ObserveMessage(kind, outcome string) {
	if mc == nil {
		return
	}
	mc.messageTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveHandler records an action handler duration
func (mc *MetricsCollector) ObserveHandler(kind string, d time.Duration) {
	if mc == nil {
		return
	}
	mc.handlerDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncDedupHit records a dedup cache short-circuit
func (mc *MetricsCollector) IncDedupHit() {
	if mc == nil {
		return
	}
	mc.dedupHitTotal.Inc()
}

// ObserveSweep records one retry sweep and how many messages it re-offered
func (mc *MetricsCollector) ObserveSweep(requeued int) {
	if mc == nil {
		return
	}
	mc.sweepTotal.Inc()
	mc.sweepRequeued.Add(float64(requeued))
}

// AddExpired records waiting messages failed by expiration
func (mc *MetricsCollector) AddExpired(n int64) {
	if mc == nil {
		return
	}
	mc.expiredTotal.Add(float64(n))
}

// AddPurged records processed messages purged by retention cleanup
func (mc *MetricsCollector) AddPurged(n int64) {
	if mc == nil {
		return
	}
	mc.purgedTotal.Add(float64(n))
}

// IncConflict records an optimistic write conflict
func (mc *MetricsCollector) IncConflict() {
	if mc == nil {
		return
	}
	mc.conflictTotal.Inc()
}

// SetPartitionDepth records the pending depth of one scheduler partition
func (mc *MetricsCollector) SetPartitionDepth(partition string, depth int) {
	if mc == nil {
		return
	}
	mc.partitionDepth.WithLabelValues(partition).Set(float64(depth))
}

// ObserveSubmit records an outbound transport submission result
func (mc *MetricsCollector) ObserveSubmit(result string) {
	if mc == nil {
		return
	}
	mc.submitTotal.WithLabelValues(result).Inc()
}
