package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/types"
)

// Config controls polling.
type Config struct {
	// Concurrency is the maximum number of units polled at the same time.
	Concurrency int

	// PollInterval is the delay between two checks of the same unit.
	PollInterval time.Duration

	// UnitTimeout is the per-unit deadline, measured from when its watcher starts.
	UnitTimeout time.Duration
}

// DefaultConfig returns 4 watchers polling every 100ms with a 5 minute deadline.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		PollInterval: 100 * time.Millisecond,
		UnitTimeout:  300 * time.Second,
	}
}

// Request describes one collection run.
type Request struct {
	// SessionID scopes every store lookup.
	SessionID string

	// Pending is the closed set of sequence numbers to await. Duplicates are watched once.
	Pending []int

	// OnResult, if set, is invoked for each result before it is placed on the
	// stream. Invocations are serialized.
	OnResult func(types.UnitResult)
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.CollectorMetrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// Collector polls a ResultStore for unit completions.
//
// A Collector is safe for concurrent use; each Stream or CollectAll call
// runs its own watcher pool. The active watcher gauge covers all of them.
type Collector struct {
	store   types.ResultStore
	cfg     Config
	logger  types.Logger
	metrics types.CollectorMetrics

	active atomic.Int64
}

// New creates a Collector.
//
// Parameters:
//   - store: Result store to poll
//   - cfg: Polling configuration (zero fields fall back to DefaultConfig values)
//   - opts: Optional configuration
//
// Returns:
//   - *Collector: Ready-to-use collector
//
// Example:
//
//	c := collector.New(store, collector.Config{
//	    Concurrency:  8,
//	    PollInterval: 50 * time.Millisecond,
//	    UnitTimeout:  time.Minute,
//	}, collector.WithLogger(logger))
func New(store types.ResultStore, cfg Config, opts ...Option) *Collector {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = def.UnitTimeout
	}

	c := &Collector{
		store:   store,
		cfg:     cfg,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Config returns the effective configuration.
func (c *Collector) Config() Config {
	return c.cfg
}

// Stream starts watching every pending unit and returns immediately.
//
// Parameters:
//   - ctx: Cancelling ctx stops the stream like Stop
//   - req: Session, pending sequence numbers and optional callback
//
// Returns:
//   - *Stream: Live stream of results in completion order
//   - error: ErrInvalidConfig for an empty session ID or a negative sequence number
func (c *Collector) Stream(ctx context.Context, req Request) (*Stream, error) {
	pending, err := normalize(req)
	if err != nil {
		return nil, err
	}

	s := newStream(ctx, req, len(pending))

	queue := make(chan int, len(pending))
	for _, seq := range pending {
		queue <- seq
	}
	close(queue)

	workers := min(c.cfg.Concurrency, len(pending))
	c.logger.Debug("starting collection", "session_id", req.SessionID, "units", len(pending), "watchers", workers)

	s.wg.Add(workers)
	for range workers {
		go c.runWatcher(s, queue)
	}

	go func() {
		s.wg.Wait()
		c.metrics.SetActiveWatchers(int(c.active.Load()))
		close(s.results)
		close(s.done)
	}()

	return s, nil
}

// CollectAll blocks until every pending unit has resolved.
//
// Returns:
//   - []types.UnitResult: Results in completion order
//   - error: ctx.Err() when the context ended before every unit resolved,
//     along with the results gathered so far
func (c *Collector) CollectAll(ctx context.Context, req Request) ([]types.UnitResult, error) {
	s, err := c.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]types.UnitResult, 0, s.Total())
	for r := range s.Results() {
		results = append(results, r)
	}

	if len(results) < s.Total() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}

	return results, nil
}

func (c *Collector) runWatcher(s *Stream, queue <-chan int) {
	defer s.wg.Done()

	for seq := range queue {
		if s.Stopped() {
			return
		}

		c.metrics.SetActiveWatchers(int(c.active.Add(1)))
		result, ok := c.watch(s, seq)
		c.metrics.SetActiveWatchers(int(c.active.Add(-1)))

		if !ok {
			return
		}
		s.emit(result)
	}
}

// watch polls a single unit until it resolves. It returns false when the
// stream stopped first.
func (c *Collector) watch(s *Stream, seq int) (types.UnitResult, bool) {
	start := time.Now()
	for {
		entry, err := c.poll(s.ctx, s.sessionID, seq)
		if err == nil && entry.Ready() {
			return c.resolve(s.sessionID, seq, entry, time.Since(start)), true
		}

		elapsed := time.Since(start)
		if elapsed >= c.cfg.UnitTimeout {
			return c.timeout(s.sessionID, seq, elapsed), true
		}

		timer := time.NewTimer(min(c.cfg.PollInterval, c.cfg.UnitTimeout-elapsed))
		select {
		case <-s.stop:
			timer.Stop()
			return types.UnitResult{}, false
		case <-timer.C:
		}

		if s.Stopped() {
			return types.UnitResult{}, false
		}
	}
}

func (c *Collector) poll(ctx context.Context, sessionID string, seq int) (types.StoreEntry, error) {
	start := time.Now()
	entry, err := c.store.Lookup(ctx, sessionID, seq)
	c.metrics.RecordStorePoll(err == nil, time.Since(start).Seconds())
	if err == nil {
		return entry, nil
	}

	if !errors.Is(err, types.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	c.logger.Warn("store lookup failed, retrying on next poll", "session_id", sessionID, "seq", seq, "error", err)

	return types.StoreEntry{}, err
}

func (c *Collector) resolve(sessionID string, seq int, entry types.StoreEntry, waited time.Duration) types.UnitResult {
	result := types.UnitResult{
		SessionID:   sessionID,
		Seq:         seq,
		Outcome:     types.OutcomeSuccess,
		ArtifactRef: entry.ArtifactRef,
		Waited:      waited,
		ResolvedAt:  time.Now(),
	}

	md, err := parseMetadata(entry.Metadata)
	if err != nil {
		c.logger.Warn("using default metadata", "session_id", sessionID, "seq", seq,
			"error", fmt.Errorf("%w: %w", types.ErrMalformedMetadata, err))
		c.metrics.RecordDegradedMetadata()
		result.Degraded = true
	}
	result.Metadata = md

	if md.Error != "" {
		result.Outcome = types.OutcomeFailure
		result.Err = fmt.Errorf("unit %d: %s: %w", seq, md.Error, types.ErrWorkerFailed)
		c.logger.Warn("worker reported failure", "session_id", sessionID, "seq", seq, "worker_id", md.WorkerID, "error", md.Error)
	} else {
		c.logger.Debug("unit resolved", "session_id", sessionID, "seq", seq, "waited", waited)
	}
	c.metrics.RecordUnitResolved(result.Outcome.String(), waited.Seconds())

	return result
}

func (c *Collector) timeout(sessionID string, seq int, waited time.Duration) types.UnitResult {
	md := types.DefaultMetadata()
	md.Error = types.ErrUnitTimeout.Error()

	c.logger.Warn("unit timed out", "session_id", sessionID, "seq", seq, "waited", waited)
	c.metrics.RecordUnitResolved(types.OutcomeFailure.String(), waited.Seconds())

	return types.UnitResult{
		SessionID:  sessionID,
		Seq:        seq,
		Outcome:    types.OutcomeFailure,
		Metadata:   md,
		Err:        fmt.Errorf("unit %d not ready after %s: %w", seq, c.cfg.UnitTimeout, types.ErrUnitTimeout),
		Waited:     waited,
		ResolvedAt: time.Now(),
	}
}

// parseMetadata decodes a worker metadata record. On error it returns the
// default record.
func parseMetadata(raw []byte) (types.Metadata, error) {
	var md types.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return types.DefaultMetadata(), err
	}

	if md.WorkerID == "" {
		md.WorkerID = types.UnknownValue
	}
	if md.Operation == "" {
		md.Operation = types.UnknownValue
	}

	return md, nil
}

func normalize(req Request) ([]int, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", types.ErrInvalidConfig)
	}

	seen := make(map[int]struct{}, len(req.Pending))
	pending := make([]int, 0, len(req.Pending))
	for _, seq := range req.Pending {
		if seq < 0 {
			return nil, fmt.Errorf("%w: negative sequence number %d", types.ErrInvalidConfig, seq)
		}
		if _, ok := seen[seq]; ok {
			continue
		}
		seen[seq] = struct{}{}
		pending = append(pending, seq)
	}

	return pending, nil
}
