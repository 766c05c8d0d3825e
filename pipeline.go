package framepipe

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/framepipe/collector"
	"github.com/arloliu/framepipe/dispatch"
	"github.com/arloliu/framepipe/internal/hooks"
	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/progress"
	"github.com/arloliu/framepipe/reorder"
	"github.com/arloliu/framepipe/sink"
	"github.com/arloliu/framepipe/types"
)

// Pipeline distributes the units of an artifact to workers and reassembles
// their results into one ordered output.
//
// Each Process call owns one session and runs the whole flow on the calling
// goroutine:
//
//	Dispatcher → TaskQueue → workers → ResultStore → Collector → Reorder Buffer → Writer
//
// with the Aggregator observing every resolved unit and publishing progress to
// the ProgressSink.
//
// Thread Safety:
//   - Process may be called concurrently; sessions are independent
//   - Sessions, Progress and Abort are safe to call from any goroutine
type Pipeline struct {
	cfg   Config
	store ResultStore

	dispatcher *dispatch.Dispatcher
	collector  *collector.Collector

	hooks    types.Hooks
	metrics  MetricsCollector
	logger   Logger
	sink     ProgressSink
	fallback FallbackFunc

	sessions *xsync.Map[string, *sessionRun]
}

// errWriteOutput marks Writer failures.
var errWriteOutput = errors.New("write output")

// sessionRun is the registry entry of one session.
type sessionRun struct {
	session *dispatch.Session
	agg     *progress.Aggregator
	cancel  context.CancelFunc
}

// Report is the final account of a session.
type Report struct {
	SessionID string
	State     SessionState
	Total     int

	// Written is the number of slots handed to the Writer.
	Written int

	// Failed lists every unit written with fallback data, ascending. Its length
	// matches Summary.Progress.Failed.
	Failed []int

	// TimedOut lists units that missed their deadline, ascending.
	TimedOut []int

	// Missing lists units that never resolved, ascending.
	Missing []int

	// Degraded is the number of successful units whose metadata was unparsable.
	Degraded int

	// Duplicates is the number of discarded duplicate results.
	Duplicates int

	Summary Summary
}

// NewPipeline creates a Pipeline.
//
// Parameters:
//   - cfg: Configuration (missing values get defaults, then validated)
//   - queue: Task queue receiving one task per unit
//   - store: Result store polled for completed units
//   - opts: Optional dependencies (logger, metrics, hooks, sink, fallback)
//
// Returns:
//   - *Pipeline: Ready-to-use pipeline
//   - error: ErrQueueRequired, ErrStoreRequired, or an error wrapping ErrInvalidConfig
//
// Example:
//
//	q, _ := queue.OpenJetStream(ctx, js, cfg.QueueSettings())
//	st, _ := store.OpenJetStream(ctx, js, cfg.StoreSettings())
//	p, err := framepipe.NewPipeline(cfg, q, st, framepipe.WithLogger(logger))
//	report, err := p.Process(ctx, source.NewStatic(frames), framepipe.Directive{Operation: "invert"}, out)
func NewPipeline(cfg Config, queue TaskQueue, store ResultStore, opts ...Option) (*Pipeline, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &pipelineOptions{}
	for _, opt := range opts {
		opt(options)
	}

	p := &Pipeline{
		cfg:      cfg,
		store:    store,
		hooks:    hooks.WithDefaults(options.hooks),
		metrics:  options.metrics,
		logger:   options.logger,
		sink:     options.sink,
		fallback: options.fallback,
		sessions: xsync.NewMap[string, *sessionRun](),
	}
	if p.metrics == nil {
		p.metrics = metrics.NewNop()
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if p.sink == nil {
		p.sink = sink.Nop{}
	}
	if p.fallback == nil {
		p.fallback = originalPayload
	}

	cfg.ValidateWithWarnings(p.logger)

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(p.logger),
		dispatch.WithMetrics(p.metrics),
		dispatch.WithTransitionHook(p.onTransition),
	}
	if options.newID != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithIDGenerator(options.newID))
	}
	p.dispatcher = dispatch.New(queue, cfg.DispatchSettings(), dispatchOpts...)
	p.collector = collector.New(store, cfg.CollectorSettings(),
		collector.WithLogger(p.logger),
		collector.WithMetrics(p.metrics),
	)

	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Process reads the units of src and runs one session over them.
//
// Parameters:
//   - ctx: Cancelling ctx aborts the session
//   - src: Source of the ordered units
//   - directive: Operation applied by workers to every unit
//   - w: Receives exactly one entry per unit, in ascending order
//
// Returns:
//   - *Report: Session report (non-nil once a session was created)
//   - error: Source error, ErrEmptyArtifact, an error wrapping ErrSubmissionFailure
//     or ErrSessionAborted, or a Writer error
func (p *Pipeline) Process(ctx context.Context, src UnitSource, directive Directive, w Writer) (*Report, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: unit source is required", ErrInvalidConfig)
	}

	units, err := src.Units(ctx)
	if err != nil {
		return nil, fmt.Errorf("read units: %w", err)
	}

	return p.Run(ctx, units, directive, w)
}

// Run runs one session over already materialized units. See Process.
func (p *Pipeline) Run(ctx context.Context, units [][]byte, directive Directive, w Writer) (*Report, error) {
	if w == nil {
		return nil, ErrWriterRequired
	}
	if len(units) == 0 {
		return nil, ErrEmptyArtifact
	}

	session := p.dispatcher.NewSession(units, directive)
	id := session.ID()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pub := progress.NewPublisher(p.sink,
		progress.WithPublisherLogger(p.logger),
		progress.WithPublisherMetrics(p.metrics),
		progress.WithWriteTimeout(p.cfg.Progress.WriteTimeout),
	)
	agg := progress.NewAggregator(id, session.Total(), session.CreatedAt(),
		progress.WithLogger(p.logger),
		progress.WithMetrics(p.metrics),
		progress.WithPublisher(pub),
	)
	run := &sessionRun{session: session, agg: agg, cancel: cancel}
	p.sessions.Store(id, run)

	pub.SetField(runCtx, id, types.FieldStatus, SessionActive.String())
	pub.SetField(runCtx, id, types.FieldTotalUnits, fmt.Sprint(session.Total()))

	report := &Report{SessionID: id, Total: session.Total()}

	err := p.execute(runCtx, run, w, report)
	if err != nil {
		p.logger.Error("session ended with error", "session_id", id, "error", err)
		p.notifyError(err)
	}

	report.State = session.State()
	report.Summary = agg.Summary()
	slices.Sort(report.Failed)
	slices.Sort(report.TimedOut)

	pub.Publish(report.Summary.Progress)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), p.cfg.Progress.WriteTimeout)
	defer closeCancel()
	if cerr := pub.Close(closeCtx); cerr != nil {
		p.logger.Debug("progress flush incomplete", "session_id", id, "error", cerr)
	}
	pub.SetField(closeCtx, id, types.FieldStatus, report.State.String())

	p.logger.Info("session finished",
		"session_id", id,
		"state", report.State.String(),
		"units", report.Total,
		"failed", len(report.Failed),
		"missing", len(report.Missing),
		"elapsed", report.Summary.Progress.Elapsed,
	)

	return report, err
}

// execute dispatches, collects, reorders and writes one session.
//
// Whatever ends the session, the reorder buffer is finalized with the session
// total so the Writer always receives one entry per unit. Units that were never
// submitted or never resolved are written as missing with fallback data.
func (p *Pipeline) execute(ctx context.Context, run *sessionRun, w Writer, report *Report) error {
	session := run.session
	id := session.ID()

	slots := &slotWriter{p: p, run: run, w: w, report: report, ctx: ctx}
	buf := reorder.New(slots.emit,
		reorder.WithLogger(p.logger),
		reorder.WithMetrics(p.metrics),
		reorder.WithSessionID(id),
	)

	dispatchErr := p.dispatcher.Submit(ctx, session)
	run.agg.RecordRetry(session.Retries())
	if dispatchErr != nil && ctx.Err() == nil {
		p.logger.Warn("dispatch ended early, collecting submitted units",
			"session_id", id, "submitted", session.Submitted(), "total", session.Total(), "error", dispatchErr)
	}

	if ctx.Err() == nil {
		if err := p.collect(ctx, run, buf, report); err != nil {
			report.Duplicates = buf.Duplicates()
			if errors.Is(err, errWriteOutput) {
				_ = session.Fail(err)
			}

			return errors.Join(dispatchErr, err)
		}
	}
	report.Duplicates = buf.Duplicates()

	aborted := ctx.Err() != nil || session.State() == SessionAborted
	if aborted || dispatchErr != nil {
		// Flush what is held even though ctx may be done.
		slots.ctx = context.WithoutCancel(ctx)
	}

	missing, finalizeErr := buf.Finalize(session.Total())
	report.Missing = missing
	if finalizeErr != nil {
		finalizeErr = fmt.Errorf("%w: %w", errWriteOutput, finalizeErr)
	}

	switch {
	case aborted:
		cause := fmt.Errorf("%w: %d of %d units resolved", ErrSessionAborted, session.Total()-len(missing), session.Total())
		if aerr := session.Abort(cause); aerr != nil && session.Err() != nil {
			cause = session.Err()
		}

		return errors.Join(cause, finalizeErr)
	case dispatchErr != nil:
		return errors.Join(dispatchErr, finalizeErr)
	case finalizeErr != nil:
		_ = session.Fail(finalizeErr)
		return finalizeErr
	}

	return session.Complete()
}

// collect streams the results of every submitted unit into the reorder buffer.
func (p *Pipeline) collect(ctx context.Context, run *sessionRun, buf *reorder.Buffer, report *Report) error {
	session := run.session

	stream, err := p.collector.Stream(ctx, collector.Request{
		SessionID: session.ID(),
		Pending:   session.Pending(),
		OnResult:  p.hooks.OnUnitResult,
	})
	if err != nil {
		_ = session.Fail(err)
		return err
	}

	var writeErr error
	for r := range stream.Results() {
		run.agg.Observe(r)
		report.record(r)

		if writeErr != nil {
			continue
		}
		if _, err := buf.Push(r); err != nil {
			writeErr = err
			stream.Stop()
		}
	}

	if writeErr != nil {
		return fmt.Errorf("%w: %w", errWriteOutput, writeErr)
	}

	return nil
}

// slotWriter resolves each emitted slot's data and hands it to the Writer.
type slotWriter struct {
	p      *Pipeline
	run    *sessionRun
	w      Writer
	report *Report
	ctx    context.Context //nolint:containedctx // swapped for the final flush
}

func (sw *slotWriter) emit(r types.UnitResult) error {
	p, run, report := sw.p, sw.run, sw.report

	entry := types.OutputEntry{Seq: r.Seq, Result: r, Missing: r.Missing()}
	if entry.Missing {
		run.agg.Observe(r)
		report.Failed = append(report.Failed, r.Seq)
	}

	if r.Succeeded() {
		data, err := p.readArtifact(sw.ctx, r)
		if err != nil {
			p.logger.Warn("artifact unreadable, writing fallback", "session_id", r.SessionID, "seq", r.Seq, "error", err)
			p.notifyError(err)
			run.agg.MarkFailed()
			report.Failed = append(report.Failed, r.Seq)
			entry.Fallback = true
		} else {
			entry.Data = data
		}
	} else {
		entry.Fallback = true
	}

	if entry.Fallback {
		entry.Data = p.fallback(r.Seq, run.session.Payload(r.Seq))
	}

	if err := sw.w.WriteUnit(sw.ctx, entry); err != nil {
		return err
	}
	report.Written++

	return nil
}

func (p *Pipeline) readArtifact(ctx context.Context, r types.UnitResult) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.OperationTimeout)
	defer cancel()

	return p.store.ReadArtifact(ctx, r.SessionID, r.Seq)
}

// record folds a collector result into the report.
func (r *Report) record(result types.UnitResult) {
	if result.Degraded {
		r.Degraded++
	}
	if result.Succeeded() {
		return
	}

	r.Failed = append(r.Failed, result.Seq)
	if result.TimedOut() {
		r.TimedOut = append(r.TimedOut, result.Seq)
	}
}

// Sessions returns a snapshot of every session known to the pipeline, oldest first.
func (p *Pipeline) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, p.sessions.Size())
	p.sessions.Range(func(_ string, run *sessionRun) bool {
		infos = append(infos, run.session.Info())
		return true
	})
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return infos
}

// Progress returns the current progress of a session, including latency percentiles.
//
// Returns:
//   - ProgressSnapshot: Current snapshot
//   - error: ErrSessionNotFound for an unknown ID
func (p *Pipeline) Progress(sessionID string) (ProgressSnapshot, error) {
	run, ok := p.sessions.Load(sessionID)
	if !ok {
		return ProgressSnapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return run.agg.Snapshot(), nil
}

// Abort stops an active session. Process returns an error wrapping
// ErrSessionAborted once in-flight work has wound down.
//
// Returns:
//   - error: ErrSessionNotFound, or an error wrapping types.ErrInvalidTransition
//     when the session already ended
func (p *Pipeline) Abort(sessionID string) error {
	run, ok := p.sessions.Load(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if err := run.session.Abort(fmt.Errorf("%w: aborted by caller", ErrSessionAborted)); err != nil {
		return err
	}
	run.cancel()

	return nil
}

// Forget removes a finished session from the registry.
//
// Returns:
//   - bool: true if the session was removed; active sessions are kept
func (p *Pipeline) Forget(sessionID string) bool {
	run, ok := p.sessions.Load(sessionID)
	if !ok || !run.session.State().IsTerminal() {
		return false
	}
	p.sessions.Delete(sessionID)

	return true
}

// onTransition forwards session state changes to the hook in the background.
func (p *Pipeline) onTransition(s *dispatch.Session, from, to types.SessionState) {
	hook := p.hooks.OnSessionStateChanged
	id := s.ID()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.OperationTimeout)
		defer cancel()

		if err := hook(ctx, id, from, to); err != nil {
			p.logger.Error("session state hook error", "session_id", id, "from", from.String(), "to", to.String(), "error", err)
		}
	}()
}

func (p *Pipeline) notifyError(err error) {
	hook := p.hooks.OnError

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.OperationTimeout)
		defer cancel()

		if herr := hook(ctx, err); herr != nil {
			p.logger.Debug("error hook failed", "error", herr)
		}
	}()
}
