package testing

import (
	"sync"

	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/types"
)

// RecordingMetrics is a MetricsCollector that keeps the values tests assert on.
type RecordingMetrics struct {
	*metrics.NopMetrics

	mu                sync.Mutex
	activeWatchers    int
	maxActiveWatchers int
	submitRetries     int
	duplicates        int
	missing           int
	degraded          int
	sinkFailures      int
	resolved          map[string]int
	transitions       []types.SessionState
}

var _ types.MetricsCollector = (*RecordingMetrics)(nil)

// NewRecordingMetrics creates an empty recorder.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{NopMetrics: metrics.NewNop(), resolved: make(map[string]int)}
}

// SetActiveWatchers tracks the current and peak watcher count.
func (m *RecordingMetrics) SetActiveWatchers(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeWatchers = count
	m.maxActiveWatchers = max(m.maxActiveWatchers, count)
}

// RecordSubmitRetry counts a submission retry.
func (m *RecordingMetrics) RecordSubmitRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitRetries++
}

// RecordSessionTransition records the target state.
func (m *RecordingMetrics) RecordSessionTransition(_, to types.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transitions = append(m.transitions, to)
}

// RecordUnitResolved counts resolutions by outcome.
func (m *RecordingMetrics) RecordUnitResolved(outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolved[outcome]++
}

// RecordDegradedMetadata counts degraded metadata.
func (m *RecordingMetrics) RecordDegradedMetadata() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.degraded++
}

// RecordDuplicateResult counts duplicates.
func (m *RecordingMetrics) RecordDuplicateResult() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.duplicates++
}

// RecordMissingUnit counts missing units.
func (m *RecordingMetrics) RecordMissingUnit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.missing++
}

// RecordSinkPublish counts failed publishes.
func (m *RecordingMetrics) RecordSinkPublish(success bool) {
	if success {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sinkFailures++
}

// MaxActiveWatchers returns the peak active watcher count.
func (m *RecordingMetrics) MaxActiveWatchers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.maxActiveWatchers
}

// ActiveWatchers returns the last reported active watcher count.
func (m *RecordingMetrics) ActiveWatchers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeWatchers
}

// SubmitRetries returns the number of submission retries.
func (m *RecordingMetrics) SubmitRetries() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.submitRetries
}

// Duplicates returns the number of duplicate results.
func (m *RecordingMetrics) Duplicates() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.duplicates
}

// Missing returns the number of missing units.
func (m *RecordingMetrics) Missing() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.missing
}

// Degraded returns the number of degraded metadata records.
func (m *RecordingMetrics) Degraded() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.degraded
}

// SinkFailures returns the number of failed sink publishes.
func (m *RecordingMetrics) SinkFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sinkFailures
}

// Resolved returns the number of resolved units with the given outcome.
func (m *RecordingMetrics) Resolved(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.resolved[outcome]
}

// Transitions returns the recorded target states in order.
func (m *RecordingMetrics) Transitions() []types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]types.SessionState(nil), m.transitions...)
}
