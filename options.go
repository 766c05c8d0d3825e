package framepipe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/framepipe/internal/metrics"
)

// Option configures a Pipeline with optional dependencies.
type Option func(*pipelineOptions)

// pipelineOptions holds optional Pipeline configuration.
type pipelineOptions struct {
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	sink     ProgressSink
	fallback FallbackFunc
	newID    func() string
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewPipeline
//
// Example:
//
//	hooks := &framepipe.Hooks{
//	    OnUnitResult: func(r framepipe.UnitResult) {
//	        log.Printf("unit %d resolved: %s", r.Seq, r.Outcome)
//	    },
//	}
//	p, err := framepipe.NewPipeline(cfg, queue, store, framepipe.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *pipelineOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewPipeline
//
// Example:
//
//	p, err := framepipe.NewPipeline(cfg, queue, store,
//	    framepipe.WithMetrics(framepipe.NewPrometheusMetrics(prometheus.DefaultRegisterer, "")))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *pipelineOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewPipeline
func WithLogger(logger Logger) Option {
	return func(o *pipelineOptions) {
		o.logger = logger
	}
}

// WithSink sets the progress sink that receives live session fields.
//
// Parameters:
//   - sink: ProgressSink implementation (sink.KV, sink.Redis, ...)
//
// Returns:
//   - Option: Functional option for NewPipeline
//
// Example:
//
//	kv, _ := sink.OpenKV(ctx, js, sink.KVConfig{})
//	p, err := framepipe.NewPipeline(cfg, queue, store, framepipe.WithSink(kv))
func WithSink(sink ProgressSink) Option {
	return func(o *pipelineOptions) {
		o.sink = sink
	}
}

// WithFallback sets the substitute written for failed units.
//
// The default writes the unit's original payload.
//
// Parameters:
//   - fn: FallbackFunc producing the replacement data
//
// Returns:
//   - Option: Functional option for NewPipeline
func WithFallback(fn FallbackFunc) Option {
	return func(o *pipelineOptions) {
		o.fallback = fn
	}
}

// WithSessionIDGenerator overrides session ID generation (uuid v4 by default).
func WithSessionIDGenerator(fn func() string) Option {
	return func(o *pipelineOptions) {
		o.newID = fn
	}
}

// NewPrometheusMetrics returns a MetricsCollector that records to Prometheus.
//
// Parameters:
//   - reg: Registerer for the collectors (prometheus.DefaultRegisterer if nil)
//   - namespace: Metric namespace ("framepipe" if empty)
//
// Returns:
//   - MetricsCollector: Prometheus-backed collector
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// originalPayload is the default FallbackFunc.
func originalPayload(_ int, original []byte) []byte {
	return original
}
