package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/types"
)

// Config controls submission retries.
type Config struct {
	// MaxAttempts is the attempt ceiling per unit, including the first try.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps every retry delay.
	MaxBackoff time.Duration

	// Multiplier grows the delay between consecutive retries.
	Multiplier float64

	// Jitter is the fraction (0..1) of each delay that may be randomly shaved off.
	Jitter float64

	// SubmitTimeout bounds a single Submit call (0 = no per-call timeout).
	SubmitTimeout time.Duration
}

// DefaultConfig returns the default retry policy: 4 attempts, 100ms doubling up to 2s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
		SubmitTimeout:  10 * time.Second,
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.DispatchMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTransitionHook registers a callback invoked after every session state change.
func WithTransitionHook(fn func(s *Session, from, to types.SessionState)) Option {
	return func(d *Dispatcher) {
		d.onTransition = fn
	}
}

// WithIDGenerator overrides session ID generation (uuid v4 by default).
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		d.newID = fn
	}
}

// WithRetrySeed makes retry jitter deterministic for a non-zero seed.
func WithRetrySeed(seed int64) Option {
	return func(d *Dispatcher) {
		d.backoff.rng = newRetryRNG(seed)
	}
}

// Dispatcher submits the units of an artifact to a TaskQueue.
type Dispatcher struct {
	queue        types.TaskQueue
	cfg          Config
	backoff      backoff
	logger       types.Logger
	metrics      types.DispatchMetrics
	onTransition func(s *Session, from, to types.SessionState)
	newID        func() string
}

// New creates a Dispatcher.
//
// Parameters:
//   - queue: Task queue receiving one task per unit
//   - cfg: Retry policy (zero fields fall back to DefaultConfig values)
//   - opts: Optional configuration
//
// Returns:
//   - *Dispatcher: Ready-to-use dispatcher
func New(queue types.TaskQueue, cfg Config, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = def.Multiplier
	}

	d := &Dispatcher{
		queue: queue,
		cfg:   cfg,
		backoff: backoff{
			initial:    cfg.InitialBackoff,
			max:        cfg.MaxBackoff,
			multiplier: cfg.Multiplier,
			jitter:     cfg.Jitter,
		},
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch creates a session for units and submits one task per unit, in order.
//
// Parameters:
//   - ctx: Context for cancellation; cancelling aborts remaining submissions
//   - units: Ordered unit payloads; index i becomes sequence number i
//   - directive: Operation applied to every unit
//
// Returns:
//   - *Session: The session, also returned on failure so callers can inspect it
//   - error: ErrEmptyArtifact, an error wrapping ErrSubmissionFailure after
//     retries are exhausted, or one wrapping ErrSessionAborted on cancellation
func (d *Dispatcher) Dispatch(ctx context.Context, units [][]byte, directive types.Directive) (*Session, error) {
	if len(units) == 0 {
		return nil, types.ErrEmptyArtifact
	}

	session := d.NewSession(units, directive)
	if err := d.Submit(ctx, session); err != nil {
		return session, err
	}

	return session, nil
}

// NewSession builds an active session with a dense, zero-based task list
// without submitting anything.
func (d *Dispatcher) NewSession(units [][]byte, directive types.Directive) *Session {
	id := d.newID()
	now := time.Now()

	tasks := make([]types.UnitTask, len(units))
	for seq, payload := range units {
		tasks[seq] = types.UnitTask{
			SessionID: id,
			Seq:       seq,
			Payload:   payload,
			Digest:    xxh3.Hash(payload),
			Directive: directive,
			CreatedAt: now,
		}
	}

	session := newSession(id, directive, tasks, now)
	session.onTransition = func(s *Session, from, to types.SessionState) {
		d.metrics.RecordSessionTransition(from, to)
		d.logger.Info("session state changed", "session_id", s.ID(), "from", from.String(), "to", to.String())
		if d.onTransition != nil {
			d.onTransition(s, from, to)
		}
	}

	return session
}

// Submit submits every task of an active session that has not been submitted yet.
func (d *Dispatcher) Submit(ctx context.Context, session *Session) error {
	d.logger.Info("dispatching session", "session_id", session.ID(), "units", session.Total(),
		"operation", session.Directive().Operation)

	for seq := session.Submitted(); seq < session.Total(); seq++ {
		if session.State() != types.SessionActive {
			return fmt.Errorf("session %s is %s: %w", session.ID(), session.State(), types.ErrSessionAborted)
		}

		if err := d.submitWithRetry(ctx, session, session.tasks[seq]); err != nil {
			if ctx.Err() != nil {
				abortErr := fmt.Errorf("%w: dispatch cancelled at unit %d: %w", types.ErrSessionAborted, seq, ctx.Err())
				_ = session.Abort(abortErr)

				return abortErr
			}

			_ = session.Fail(err)
			d.logger.Error("session dispatch failed", "session_id", session.ID(), "seq", seq, "error", err)

			return err
		}
		session.markSubmitted()
	}

	return nil
}

func (d *Dispatcher) submitWithRetry(ctx context.Context, session *Session, task types.UnitTask) error {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.submitOnce(ctx, task)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}

		wait := d.backoff.delay(attempt)
		d.logger.Warn("task submission failed, retrying",
			"session_id", task.SessionID, "seq", task.Seq, "attempt", attempt, "backoff", wait, "error", err)
		session.markRetry()
		d.metrics.RecordSubmitRetry()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: unit %d after %d attempts: %w", types.ErrSubmissionFailure, task.Seq, d.cfg.MaxAttempts, lastErr)
}

func (d *Dispatcher) submitOnce(ctx context.Context, task types.UnitTask) error {
	submitCtx := ctx
	if d.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, d.cfg.SubmitTimeout)
		defer cancel()
	}

	start := time.Now()
	err := d.queue.Submit(submitCtx, task)
	d.metrics.RecordSubmission(err == nil, time.Since(start).Seconds())

	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("submit timed out after %s: %w", d.cfg.SubmitTimeout, err)
	}

	return err
}
