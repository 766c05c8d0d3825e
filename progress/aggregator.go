package progress

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/types"
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.ProgressMetrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithPublisher publishes a snapshot after every update.
func WithPublisher(p *Publisher) Option {
	return func(a *Aggregator) {
		a.publisher = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

type workerAcc struct {
	units    int
	totalMS  float64
	memoryMB float64
}

// Aggregator derives progress statistics for one session.
//
// Completed counts every resolved unit, failures included. Only successful
// units contribute to the latency sample and the per-worker statistics.
type Aggregator struct {
	sessionID string
	total     int
	start     time.Time

	now       func() time.Time
	logger    types.Logger
	metrics   types.ProgressMetrics
	publisher *Publisher

	mu         sync.Mutex
	completed  int
	failed     int
	retries    int
	durations  []float64
	workers    map[string]*workerAcc
	operations map[string]int
}

// NewAggregator creates an Aggregator.
//
// Parameters:
//   - sessionID: Session the numbers belong to
//   - total: Number of units in the session
//   - start: Session start time, the origin for throughput
//   - opts: Optional configuration
//
// Returns:
//   - *Aggregator: Aggregator with all counters at zero
func NewAggregator(sessionID string, total int, start time.Time, opts ...Option) *Aggregator {
	a := &Aggregator{
		sessionID:  sessionID,
		total:      total,
		start:      start,
		now:        time.Now,
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
		durations:  make([]float64, 0, total),
		workers:    make(map[string]*workerAcc),
		operations: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Observe folds one resolved unit into the counters and publishes the new
// snapshot. The returned snapshot carries no latency statistics; use Snapshot
// for those.
//
// Publishing is best-effort and latest-wins: when the sink is slower than the
// result rate, intermediate snapshots are coalesced and only the newest one is
// written. The last snapshot published before Publisher.Close is always
// written.
func (a *Aggregator) Observe(result types.UnitResult) types.ProgressSnapshot {
	a.mu.Lock()
	a.completed++
	if result.Succeeded() {
		md := result.Metadata
		a.durations = append(a.durations, md.DurationMS)
		a.operations[md.Operation]++

		w, ok := a.workers[md.WorkerID]
		if !ok {
			w = &workerAcc{}
			a.workers[md.WorkerID] = w
		}
		w.units++
		w.totalMS += md.DurationMS
		w.memoryMB += md.MemoryMB

		a.metrics.RecordProcessingDuration(md.Operation, md.DurationMS/1000)
	} else {
		a.failed++
	}
	snap := a.snapshotLocked(false)
	a.mu.Unlock()

	if snap.Done() {
		a.logger.Info("all units resolved", "session_id", a.sessionID, "total", snap.Total,
			"failed", snap.Failed, "elapsed", snap.Elapsed, "throughput", snap.Throughput)
	}
	if a.publisher != nil {
		a.publisher.Publish(snap)
	}

	return snap
}

// MarkFailed counts a unit already observed as a success as failed, for a
// result whose artifact could not be used. Completed is unchanged.
func (a *Aggregator) MarkFailed() {
	a.mu.Lock()
	a.failed++
	snap := a.snapshotLocked(false)
	a.mu.Unlock()

	if a.publisher != nil {
		a.publisher.Publish(snap)
	}
}

// RecordRetry adds n submission retries to the session count.
func (a *Aggregator) RecordRetry(n int) {
	if n <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.retries += n
}

// Snapshot returns the current progress.
func (a *Aggregator) Snapshot() types.ProgressSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.snapshotLocked(true)
}

// Percentile returns the p-th percentile of successful unit durations in milliseconds.
func (a *Aggregator) Percentile(p float64) float64 {
	a.mu.Lock()
	sorted := slices.Clone(a.durations)
	a.mu.Unlock()

	slices.Sort(sorted)

	return Percentile(sorted, p)
}

// Summary returns the final report: progress plus per-worker and per-operation statistics.
func (a *Aggregator) Summary() types.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	workers := make(map[string]types.WorkerStats, len(a.workers))
	for id, w := range a.workers {
		workers[id] = types.WorkerStats{
			Units:       w.units,
			TotalMS:     w.totalMS,
			AvgMS:       w.totalMS / float64(w.units),
			AvgMemoryMB: w.memoryMB / float64(w.units),
		}
	}

	return types.Summary{
		Progress:    a.snapshotLocked(true),
		Workers:     workers,
		Operations:  maps.Clone(a.operations),
		WorkerCount: len(workers),
	}
}

// snapshotLocked builds a snapshot. Latency statistics sort the whole sample,
// so they are only computed on request.
func (a *Aggregator) snapshotLocked(latency bool) types.ProgressSnapshot {
	now := a.now()
	elapsed := now.Sub(a.start)

	var throughput float64
	if secs := elapsed.Seconds(); secs > 0 {
		throughput = float64(a.completed) / secs
	}

	remaining := max(a.total-a.completed, 0)
	var eta time.Duration
	if throughput > 0 {
		eta = time.Duration(float64(remaining) / throughput * float64(time.Second))
	}

	var percent float64
	switch {
	case a.total > 0 && a.completed >= a.total:
		percent = 100
	case a.total > 0:
		percent = float64(a.completed) / float64(a.total) * 100
	}

	snap := types.ProgressSnapshot{
		SessionID:  a.sessionID,
		Total:      a.total,
		Completed:  a.completed,
		Failed:     a.failed,
		Retries:    a.retries,
		Elapsed:    elapsed,
		Throughput: throughput,
		ETA:        eta,
		Percent:    percent,
		UpdatedAt:  now,
	}
	if latency {
		snap.Latency = Summarize(a.durations)
	}

	return snap
}
