package progress

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/internal/metrics"
	"github.com/arloliu/framepipe/types"
)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the publisher logger.
func WithPublisherLogger(logger types.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublisherMetrics sets the publisher metrics collector.
func WithPublisherMetrics(m types.ProgressMetrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithWriteTimeout bounds each sink write (default 2s).
func WithWriteTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.timeout = d
	}
}

// Publisher writes progress snapshots to a ProgressSink in the background.
//
// Publish never blocks: the mailbox holds one snapshot and a newer snapshot
// replaces an unwritten older one.
type Publisher struct {
	sink    types.ProgressSink
	logger  types.Logger
	metrics types.ProgressMetrics
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	mailbox chan types.ProgressSnapshot
	done    chan struct{}
}

// NewPublisher creates a Publisher and starts its writer goroutine.
//
// Parameters:
//   - sink: Destination for progress fields
//   - opts: Optional configuration
//
// Returns:
//   - *Publisher: Running publisher; call Close to flush and stop it
func NewPublisher(sink types.ProgressSink, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sink:    sink,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		timeout: 2 * time.Second,
		mailbox: make(chan types.ProgressSnapshot, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.run()

	return p
}

// Publish queues a snapshot for writing, replacing any unwritten one.
func (p *Publisher) Publish(snap types.ProgressSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	for {
		select {
		case p.mailbox <- snap:
			return
		default:
		}

		// Drop the stale snapshot; the writer may have taken it already.
		select {
		case <-p.mailbox:
		default:
		}
	}
}

// SetField writes one field synchronously. Errors are swallowed like
// snapshot writes.
func (p *Publisher) SetField(ctx context.Context, sessionID, field, value string) {
	p.write(ctx, sessionID, field, value)
}

// Close stops accepting snapshots and waits for the last one to be written.
//
// Returns:
//   - error: ctx.Err() if the writer did not finish in time
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.mailbox)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	for snap := range p.mailbox {
		p.writeSnapshot(snap)
	}
}

func (p *Publisher) writeSnapshot(snap types.ProgressSnapshot) {
	fields := []struct{ name, value string }{
		{types.FieldUnitsDone, strconv.Itoa(snap.Completed)},
		{types.FieldUnitsFailed, strconv.Itoa(snap.Failed)},
		{types.FieldProgressPct, FormatFloat(snap.Percent)},
		{types.FieldThroughput, FormatFloat(snap.Throughput)},
		{types.FieldETASeconds, FormatFloat(snap.ETA.Seconds())},
	}

	for _, f := range fields {
		p.write(context.Background(), snap.SessionID, f.name, f.value)
	}
}

func (p *Publisher) write(ctx context.Context, sessionID, field, value string) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := p.sink.Set(ctx, sessionID, field, value)
	p.metrics.RecordSinkPublish(err == nil)
	if err != nil {
		p.logger.Debug("progress publish failed", "session_id", sessionID, "field", field, "error", err)
	}
}

// FormatFloat renders a progress value with at most two decimals.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
