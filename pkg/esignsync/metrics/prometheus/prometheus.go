package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements esignsync.Metrics using Prometheus.
type Metrics struct {
	eventsReceivedTotal  *prometheus.CounterVec
	eventsRecordedTotal  *prometheus.CounterVec
	locateTotal          *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	noopTotal            *prometheus.CounterVec
	artifactCaptureTotal *prometheus.CounterVec
	artifactBytes        prometheus.Histogram
	storageOpsDuration   *prometheus.HistogramVec
	storageOpsErrors     *prometheus.CounterVec
	outcomeTotal         *prometheus.CounterVec
	outcomeDuration      prometheus.Histogram
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_received_total",
			Help:      "Total number of inbound webhook events by type.",
		}, []string{"event_type"}),

		eventsRecordedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_recorded_total",
			Help:      "Total number of recorded events by write path.",
		}, []string{"path"}),

		locateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agreement_locate_total",
			Help:      "Total number of agreement lookups by strategy and result.",
		}, []string{"strategy", "found"}),

		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Total number of lifecycle transitions.",
		}, []string{"from", "to"}),

		noopTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_noop_total",
			Help:      "Total number of events reconciled to a no-op.",
		}, []string{"event_type"}),

		artifactCaptureTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_captures_total",
			Help:      "Total number of artifact capture attempts.",
		}, []string{"success"}),

		artifactBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Distribution of decoded artifact sizes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),

		outcomeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Total number of completed orchestrations.",
		}, []string{"success"}),

		outcomeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "End-to-end latency of event processing.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordEventReceived(eventType string) {
	m.eventsReceivedTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordEventRecorded(path string) {
	m.eventsRecordedTotal.WithLabelValues(path).Inc()
}

func (m *Metrics) RecordLocate(strategy string, found bool) {
	if strategy == "" {
		strategy = "none"
	}
	m.locateTotal.WithLabelValues(strategy, strconv.FormatBool(found)).Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordNoOp(eventType string) {
	m.noopTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordArtifactCapture(success bool, bytes int) {
	m.artifactCaptureTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
	if success {
		m.artifactBytes.Observe(float64(bytes))
	}
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordOutcome(success bool, duration time.Duration) {
	m.outcomeTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
	m.outcomeDuration.Observe(duration.Seconds())
}
