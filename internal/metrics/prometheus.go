package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/framepipe/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing
// a PrometheusCollector that is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	submissions        *prometheus.CounterVec
	submitLatency      prometheus.Histogram
	submitRetries      prometheus.Counter
	sessionTransitions *prometheus.CounterVec

	activeWatchers   prometheus.Gauge
	storePolls       *prometheus.CounterVec
	storePollLatency prometheus.Histogram
	unitsResolved    *prometheus.CounterVec
	unitWait         *prometheus.HistogramVec
	degradedMetadata prometheus.Counter

	reorderBuffered prometheus.Gauge
	duplicates      prometheus.Counter
	missingUnits    prometheus.Counter

	processingDuration *prometheus.HistogramVec
	sinkPublishes      *prometheus.CounterVec

	heartbeats     *prometheus.CounterVec
	unitsProcessed *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "framepipe" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "framepipe"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "submissions_total",
			Help:      "Total task submission attempts by result.",
		}, []string{"result"})
		p.submitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "submit_latency_seconds",
			Help:      "Latency of task submission attempts in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		})
		p.submitRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "submit_retries_total",
			Help:      "Total task submission retries.",
		})
		p.sessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "session_transitions_total",
			Help:      "Total session state transitions by target state.",
		}, []string{"from", "to"})

		p.activeWatchers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "collector",
			Name:      "active_watchers",
			Help:      "Current number of units being polled.",
		})
		p.storePolls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "collector",
			Name:      "store_polls_total",
			Help:      "Total result store lookups by result.",
		}, []string{"result"})
		p.storePollLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "collector",
			Name:      "store_poll_latency_seconds",
			Help:      "Latency of result store lookups in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		})
		p.unitsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "collector",
			Name:      "units_resolved_total",
			Help:      "Total resolved units by outcome.",
		}, []string{"outcome"})
		p.unitWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "collector",
			Name:      "unit_wait_seconds",
			Help:      "Time from watch start to resolution in seconds by outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"})
		p.degradedMetadata = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "collector",
			Name:      "degraded_metadata_total",
			Help:      "Total units whose metadata could not be parsed.",
		})

		p.reorderBuffered = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "reorder",
			Name:      "buffered_results",
			Help:      "Current number of results awaiting earlier units.",
		})
		p.duplicates = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reorder",
			Name:      "duplicates_total",
			Help:      "Total duplicate arrivals discarded.",
		})
		p.missingUnits = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reorder",
			Name:      "missing_units_total",
			Help:      "Total gaps reported when sessions were finalized.",
		})

		p.processingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "progress",
			Name:      "processing_duration_seconds",
			Help:      "Worker-reported processing duration in seconds by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation"})
		p.sinkPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "progress",
			Name:      "sink_publishes_total",
			Help:      "Total progress sink publishes by result.",
		}, []string{"result"})

		p.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "heartbeats_total",
			Help:      "Total worker heartbeats by result.",
		}, []string{"worker", "result"})
		p.unitsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "units_processed_total",
			Help:      "Total units processed by workers by operation and result.",
		}, []string{"operation", "result"})

		p.reg.MustRegister(
			p.submissions,
			p.submitLatency,
			p.submitRetries,
			p.sessionTransitions,
			p.activeWatchers,
			p.storePolls,
			p.storePollLatency,
			p.unitsResolved,
			p.unitWait,
			p.degradedMetadata,
			p.reorderBuffered,
			p.duplicates,
			p.missingUnits,
			p.processingDuration,
			p.sinkPublishes,
			p.heartbeats,
			p.unitsProcessed,
		)
	})
}

// RecordSubmission counts a submission attempt and observes its latency.
func (p *PrometheusCollector) RecordSubmission(success bool, duration float64) {
	p.ensureRegistered()
	p.submissions.WithLabelValues(resultLabel(success)).Inc()
	p.submitLatency.Observe(duration)
}

// RecordSubmitRetry increments the submission retry counter.
func (p *PrometheusCollector) RecordSubmitRetry() {
	p.ensureRegistered()
	p.submitRetries.Inc()
}

// RecordSessionTransition counts a session state transition.
func (p *PrometheusCollector) RecordSessionTransition(from, to types.SessionState) {
	p.ensureRegistered()
	p.sessionTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// SetActiveWatchers sets the active watcher gauge.
func (p *PrometheusCollector) SetActiveWatchers(count int) {
	p.ensureRegistered()
	p.activeWatchers.Set(float64(count))
}

// RecordStorePoll counts a store lookup and observes its latency.
func (p *PrometheusCollector) RecordStorePoll(success bool, duration float64) {
	p.ensureRegistered()
	p.storePolls.WithLabelValues(resultLabel(success)).Inc()
	p.storePollLatency.Observe(duration)
}

// RecordUnitResolved counts a resolved unit and observes its wait time.
func (p *PrometheusCollector) RecordUnitResolved(outcome string, waited float64) {
	p.ensureRegistered()
	p.unitsResolved.WithLabelValues(outcome).Inc()
	p.unitWait.WithLabelValues(outcome).Observe(waited)
}

// RecordDegradedMetadata increments the degraded metadata counter.
func (p *PrometheusCollector) RecordDegradedMetadata() {
	p.ensureRegistered()
	p.degradedMetadata.Inc()
}

// SetReorderBuffered sets the reorder buffer gauge.
func (p *PrometheusCollector) SetReorderBuffered(count int) {
	p.ensureRegistered()
	p.reorderBuffered.Set(float64(count))
}

// RecordDuplicateResult increments the duplicate counter.
func (p *PrometheusCollector) RecordDuplicateResult() {
	p.ensureRegistered()
	p.duplicates.Inc()
}

// RecordMissingUnit increments the missing unit counter.
func (p *PrometheusCollector) RecordMissingUnit() {
	p.ensureRegistered()
	p.missingUnits.Inc()
}

// RecordProcessingDuration observes a worker-reported processing duration.
func (p *PrometheusCollector) RecordProcessingDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.processingDuration.WithLabelValues(operation).Observe(duration)
}

// RecordSinkPublish counts a progress sink publish.
func (p *PrometheusCollector) RecordSinkPublish(success bool) {
	p.ensureRegistered()
	p.sinkPublishes.WithLabelValues(resultLabel(success)).Inc()
}

// RecordHeartbeat counts a worker heartbeat.
func (p *PrometheusCollector) RecordHeartbeat(workerID string, success bool) {
	p.ensureRegistered()
	p.heartbeats.WithLabelValues(workerID, resultLabel(success)).Inc()
}

// RecordUnitProcessed counts a unit handled by a worker.
func (p *PrometheusCollector) RecordUnitProcessed(operation string, success bool) {
	p.ensureRegistered()
	p.unitsProcessed.WithLabelValues(operation, resultLabel(success)).Inc()
}
