package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/framepipe/internal/heartbeat"
	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/internal/stableid"
	"github.com/arloliu/framepipe/queue"
	"github.com/arloliu/framepipe/types"
)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.WorkerMetrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithRegistry replaces the built-in operation registry.
func WithRegistry(r *Registry) Option {
	return func(w *Worker) {
		w.registry = r
	}
}

// WithWorkerID sets a fixed worker ID and disables stable ID claiming.
func WithWorkerID(id string) Option {
	return func(w *Worker) {
		w.workerID.Store(id)
	}
}

// WithHostname overrides the hostname reported in metadata.
func WithHostname(hostname string) Option {
	return func(w *Worker) {
		w.hostname = hostname
	}
}

// WithStableID claims the worker ID from a pool of {prefix}-{minID}..{prefix}-{maxID}
// in kv, whose TTL must equal ttl.
func WithStableID(kv jetstream.KeyValue, prefix string, minID, maxID int, ttl time.Duration) Option {
	return func(w *Worker) {
		w.idKV = kv
		w.idPrefix = prefix
		w.idMin = minID
		w.idMax = maxID
		w.idTTL = ttl
	}
}

// WithHeartbeat publishes liveness beats to kv under "{prefix}.{workerID}".
func WithHeartbeat(kv jetstream.KeyValue, prefix string) Option {
	return func(w *Worker) {
		w.hbKV = kv
		w.hbPrefix = prefix
	}
}

// Worker consumes unit tasks and writes their results.
type Worker struct {
	js       jetstream.JetStream
	store    types.ResultWriter
	cfg      Config
	registry *Registry
	logger   types.Logger
	metrics  types.WorkerMetrics
	hostname string
	proc     *process.Process

	idKV     jetstream.KeyValue
	idPrefix string
	idMin    int
	idMax    int
	idTTL    time.Duration

	hbKV     jetstream.KeyValue
	hbPrefix string

	mu       sync.Mutex
	started  bool
	workerID atomic.Value // string
	claimer  *stableid.Claimer
	beats    *heartbeat.Publisher
	cancel   context.CancelFunc
	done     chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a Worker.
//
// Parameters:
//   - js: JetStream context holding the unit stream
//   - store: Destination for artifacts and metadata
//   - cfg: Worker configuration (zero fields use defaults)
//   - opts: Optional configuration
//
// Returns:
//   - *Worker: Worker ready to Start
//   - error: Missing dependency
func New(js jetstream.JetStream, store types.ResultWriter, cfg Config, opts ...Option) (*Worker, error) {
	if js == nil {
		return nil, errors.New("JetStream context is required")
	}
	if store == nil {
		return nil, types.ErrStoreRequired
	}

	cfg.applyDefaults()
	hostname, err := os.Hostname()
	if err != nil {
		hostname = types.UnknownValue
	}

	w := &Worker{
		js:       js,
		store:    store,
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		hostname: hostname,
		proc:     selfProcess(),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start claims an ID, creates the durable consumer and starts pulling.
//
// Returns:
//   - error: ErrAlreadyStarted, an error wrapping ErrIDClaimFailed, or a consumer error
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return types.ErrAlreadyStarted
	}

	if err := w.claimIDLocked(ctx); err != nil {
		return err
	}

	durable := sanitizeConsumerName(w.cfg.ConsumerName)
	cons, err := w.js.CreateOrUpdateConsumer(ctx, w.cfg.StreamName, jetstream.ConsumerConfig{
		Name:              durable,
		Durable:           durable,
		FilterSubjects:    w.cfg.subjects(),
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           w.cfg.AckWait,
		MaxDeliver:        w.cfg.MaxDeliver,
		InactiveThreshold: w.cfg.InactiveThreshold,
	})
	if err != nil {
		w.releaseLocked()
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}

	if w.hbKV != nil {
		w.beats = heartbeat.New(w.hbKV, w.hbPrefix, w.WorkerID(), w.cfg.HeartbeatInterval,
			heartbeat.WithStatus(w.status),
			heartbeat.WithHostname(w.hostname),
			heartbeat.WithMetrics(w.metrics),
			heartbeat.WithLogger(w.logger),
		)
		if err := w.beats.Start(ctx); err != nil {
			w.beats = nil
			w.releaseLocked()
			return fmt.Errorf("start heartbeat: %w", err)
		}
	}

	pullCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.runPullLoop(pullCtx, cons, w.done)

	w.started = true
	w.logger.Info("worker started", "worker_id", w.WorkerID(), "consumer", durable, "shards", w.cfg.Shards)

	return nil
}

// Stop stops pulling, stops the heartbeat and releases the claimed ID.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return types.ErrNotStarted
	}
	w.started = false

	w.cancel()
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("stop context cancelled before pull loop exited")
	}

	if w.beats != nil {
		if err := w.beats.Stop(); err != nil {
			w.logger.Warn("failed to stop heartbeat", "error", err)
		}
		w.beats = nil
	}
	w.logger.Info("worker stopped", "worker_id", w.WorkerID(),
		"processed", w.processed.Load(), "failed", w.failed.Load())
	w.releaseLocked()

	return ctx.Err()
}

// WorkerID returns the worker identity written into metadata.
func (w *Worker) WorkerID() string {
	id, _ := w.workerID.Load().(string)
	return id
}

// Processed returns the number of units completed successfully.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// Failed returns the number of units finalized with an error record.
func (w *Worker) Failed() int64 {
	return w.failed.Load()
}

func (w *Worker) claimIDLocked(ctx context.Context) error {
	if w.WorkerID() != "" {
		return nil
	}
	if w.idKV == nil {
		w.workerID.Store(fmt.Sprintf("%s-%d", w.hostname, os.Getpid()))
		return nil
	}

	claimer := stableid.NewClaimer(w.idKV, w.idPrefix, w.idMin, w.idMax, w.idTTL, w.logger)
	id, err := claimer.Claim(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIDClaimFailed, err)
	}
	if err := claimer.StartRenewal(); err != nil {
		_ = claimer.Release(ctx)
		return fmt.Errorf("%w: %w", types.ErrIDClaimFailed, err)
	}
	w.claimer = claimer
	w.workerID.Store(id)

	return nil
}

func (w *Worker) releaseLocked() {
	if w.claimer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.claimer.Release(ctx); err != nil {
		w.logger.Warn("failed to release worker ID", "worker_id", w.WorkerID(), "error", err)
	}
	w.claimer = nil
	w.workerID.Store("")
}

func (w *Worker) status() heartbeat.Status {
	return heartbeat.Status{
		UnitsProcessed: w.processed.Load(),
		UnitsFailed:    w.failed.Load(),
		MemoryMB:       processMemoryMB(w.proc),
	}
}

// runPullLoop pulls messages until ctx is cancelled, recreating the iterator
// after transient errors.
func (w *Worker) runPullLoop(ctx context.Context, cons jetstream.Consumer, done chan<- struct{}) {
	defer close(done)
	w.logger.Debug("starting worker pull loop", "consumer", w.cfg.ConsumerName)

	for {
		iter, err := cons.Messages(
			jetstream.PullMaxMessages(1),
			jetstream.PullExpiry(w.cfg.FetchTimeout),
			jetstream.PullHeartbeat(w.cfg.FetchTimeout/2),
		)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("failed to create message iterator", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.RetryBackoff):
				continue
			}
		}

		// Next blocks, so stop the iterator from the outside on cancellation.
		stopIter := context.AfterFunc(ctx, iter.Stop)

		for {
			msg, err := iter.Next()
			if err != nil {
				iter.Stop()
				stopIter()
				if ctx.Err() != nil || errors.Is(err, jetstream.ErrMsgIteratorClosed) {
					if ctx.Err() != nil {
						return
					}

					break
				}
				if errors.Is(err, jetstream.ErrNoHeartbeat) {
					w.logger.Error("worker pull loop: no heartbeat", "error", err)
					break
				}
				w.logger.Warn("worker pull loop: iterator error, retrying", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.cfg.RetryBackoff):
				}

				break
			}

			w.handle(ctx, msg)
		}
	}
}

// handle processes one task and settles the message itself.
func (w *Worker) handle(ctx context.Context, msg jetstream.Msg) {
	task, err := queue.DecodeTask(msg.Data())
	if err != nil {
		w.logger.Error("dropping malformed task", "subject", msg.Subject(), "error", err)
		_ = msg.Term()

		return
	}
	if task.Digest != 0 && xxh3.Hash(task.Payload) != task.Digest {
		w.logger.Error("dropping task with digest mismatch", "session_id", task.SessionID, "seq", task.Seq)
		_ = msg.Term()

		return
	}

	attempt := 1
	if md, err := msg.Metadata(); err == nil {
		attempt = int(md.NumDelivered) //nolint:gosec // bounded by MaxDeliver
	}
	opName := task.Directive.Operation

	op, err := w.registry.Lookup(opName)
	if err != nil {
		w.finalizeFailure(ctx, msg, task, err, 0)
		return
	}

	start := time.Now()
	out, err := op(ctx, task.Payload, task.Directive.Params)
	elapsed := time.Since(start)
	if err != nil {
		w.metrics.RecordUnitProcessed(opName, false)
		if attempt < w.cfg.MaxDeliver {
			delay := w.cfg.RetryDelay * time.Duration(attempt)
			w.logger.Warn("operation failed, redelivering",
				"session_id", task.SessionID, "seq", task.Seq, "attempt", attempt, "delay", delay, "error", err)
			_ = msg.NakWithDelay(delay)

			return
		}
		w.finalizeFailure(ctx, msg, task, err, elapsed)

		return
	}

	md := w.metadata(opName, elapsed)
	if err := w.write(ctx, task, out, md); err != nil {
		w.logger.Warn("failed to store result, redelivering", "session_id", task.SessionID, "seq", task.Seq, "error", err)
		_ = msg.NakWithDelay(w.cfg.RetryDelay)

		return
	}

	w.processed.Add(1)
	w.metrics.RecordUnitProcessed(opName, true)
	w.logger.Debug("unit processed", "session_id", task.SessionID, "seq", task.Seq, "duration_ms", md.DurationMS)
	_ = msg.Ack()
}

// finalizeFailure stores the original payload with an error record so the
// unit resolves as a failure downstream.
func (w *Worker) finalizeFailure(ctx context.Context, msg jetstream.Msg, task types.UnitTask, cause error, elapsed time.Duration) {
	md := w.metadata(task.Directive.Operation, elapsed)
	md.Error = cause.Error()

	if err := w.write(ctx, task, task.Payload, md); err != nil {
		w.logger.Warn("failed to store failure record, redelivering", "session_id", task.SessionID, "seq", task.Seq, "error", err)
		_ = msg.NakWithDelay(w.cfg.RetryDelay)

		return
	}

	w.failed.Add(1)
	w.logger.Error("unit failed permanently", "session_id", task.SessionID, "seq", task.Seq, "error", cause)
	_ = msg.Ack()
}

func (w *Worker) metadata(op string, elapsed time.Duration) types.Metadata {
	return types.Metadata{
		DurationMS: float64(elapsed.Microseconds()) / 1000,
		WorkerID:   w.WorkerID(),
		Hostname:   w.hostname,
		Operation:  op,
		MemoryMB:   processMemoryMB(w.proc),
	}
}

// write stores the artifact before the metadata; metadata presence marks the pair complete.
func (w *Worker) write(ctx context.Context, task types.UnitTask, data []byte, md types.Metadata) error {
	if err := w.store.PutArtifact(ctx, task.SessionID, task.Seq, data); err != nil {
		return err
	}

	return w.store.PutMetadata(ctx, task.SessionID, task.Seq, md)
}

// sanitizeConsumerName replaces characters NATS does not allow in consumer names with '_'.
func sanitizeConsumerName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' ||
			r == '.' || r == '*' || r == '>' ||
			r == '/' || r == '\\' ||
			r < 32 || r == 127 {
			return '_'
		}

		return r
	}, name)
}
