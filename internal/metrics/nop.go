package metrics

import "github.com/arloliu/framepipe/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	p, err := framepipe.NewPipeline(&cfg, queue, store, framepipe.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// DispatchMetrics implementation

// RecordSubmission discards the submission metric.
func (n *NopMetrics) RecordSubmission(_ /* success */ bool, _ /* duration */ float64) {
	// No-op
}

// RecordSubmitRetry discards the submission retry metric.
func (n *NopMetrics) RecordSubmitRetry() {
	// No-op
}

// RecordSessionTransition discards the session transition metric.
func (n *NopMetrics) RecordSessionTransition(_ /* from */, _ /* to */ types.SessionState) {
	// No-op
}

// CollectorMetrics implementation

// SetActiveWatchers discards the active watchers gauge.
func (n *NopMetrics) SetActiveWatchers(_ /* count */ int) {
	// No-op
}

// RecordStorePoll discards the store poll metric.
func (n *NopMetrics) RecordStorePoll(_ /* success */ bool, _ /* duration */ float64) {
	// No-op
}

// RecordUnitResolved discards the unit resolution metric.
func (n *NopMetrics) RecordUnitResolved(_ /* outcome */ string, _ /* waited */ float64) {
	// No-op
}

// RecordDegradedMetadata discards the degraded metadata counter.
func (n *NopMetrics) RecordDegradedMetadata() {
	// No-op
}

// ReorderMetrics implementation

// SetReorderBuffered discards the buffered results gauge.
func (n *NopMetrics) SetReorderBuffered(_ /* count */ int) {
	// No-op
}

// RecordDuplicateResult discards the duplicate counter.
func (n *NopMetrics) RecordDuplicateResult() {
	// No-op
}

// RecordMissingUnit discards the missing unit counter.
func (n *NopMetrics) RecordMissingUnit() {
	// No-op
}

// ProgressMetrics implementation

// RecordProcessingDuration discards the processing duration metric.
func (n *NopMetrics) RecordProcessingDuration(_ /* operation */ string, _ /* duration */ float64) {
	// No-op
}

// RecordSinkPublish discards the sink publish metric.
func (n *NopMetrics) RecordSinkPublish(_ /* success */ bool) {
	// No-op
}

// WorkerMetrics implementation

// RecordHeartbeat discards the heartbeat metric.
func (n *NopMetrics) RecordHeartbeat(_ /* workerID */ string, _ /* success */ bool) {
	// No-op
}

// RecordUnitProcessed discards the worker unit metric.
func (n *NopMetrics) RecordUnitProcessed(_ /* operation */ string, _ /* success */ bool) {
	// No-op
}
