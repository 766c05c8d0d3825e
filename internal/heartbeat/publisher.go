package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/types"
)

// Common errors for heartbeat operations.
var (
	ErrNotStarted     = errors.New("publisher not started")
	ErrAlreadyStarted = errors.New("publisher already started")
	ErrNoWorkerID     = errors.New("worker ID not set")
)

// Status is the worker-provided part of a heartbeat.
type Status struct {
	UnitsProcessed int64   `json:"units_processed"`
	UnitsFailed    int64   `json:"units_failed"`
	MemoryMB       float64 `json:"memory_mb"`
}

// Beat is the JSON value stored under a worker's heartbeat key.
type Beat struct {
	WorkerID  string    `json:"worker_id"`
	Hostname  string    `json:"hostname,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Status
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithStatus sets the callback that supplies worker counters for each beat.
func WithStatus(fn func() Status) Option {
	return func(p *Publisher) {
		p.status = fn
	}
}

// WithHostname sets the hostname reported in each beat.
func WithHostname(hostname string) Option {
	return func(p *Publisher) {
		p.hostname = hostname
	}
}

// WithMetrics sets the metrics collector for heartbeat events.
func WithMetrics(metrics types.WorkerMetrics) Option {
	return func(p *Publisher) {
		p.metrics = metrics
	}
}

// WithLogger sets the logger for publish failures.
func WithLogger(logger types.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Publisher publishes periodic heartbeats to a NATS KV bucket.
type Publisher struct {
	kv       jetstream.KeyValue
	prefix   string
	workerID string
	hostname string
	interval time.Duration
	status   func() Status
	metrics  types.WorkerMetrics
	logger   types.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a new heartbeat publisher.
//
// Parameters:
//   - kv: KV bucket with a TTL of ~3x interval
//   - prefix: Key prefix (e.g., "worker-hb")
//   - workerID: Stable worker ID
//   - interval: Heartbeat interval
//   - opts: Optional configuration
//
// Returns:
//   - *Publisher: New heartbeat publisher instance
func New(kv jetstream.KeyValue, prefix, workerID string, interval time.Duration, opts ...Option) *Publisher {
	p := &Publisher{
		kv:       kv,
		prefix:   prefix,
		workerID: workerID,
		interval: interval,
		status:   func() Status { return Status{} },
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start publishes the first heartbeat synchronously, then keeps publishing
// every interval until Stop is called.
//
// Returns:
//   - error: ErrAlreadyStarted, ErrNoWorkerID, or the initial publish error
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.workerID == "" {
		return ErrNoWorkerID
	}

	if err := p.publish(ctx); err != nil {
		return fmt.Errorf("failed to publish initial heartbeat: %w", err)
	}

	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.publishLoop(p.stopCh, p.doneCh)

	return nil
}

// Stop stops publishing and deletes the heartbeat key.
//
// Returns:
//   - error: ErrNotStarted if not running, or the delete error
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	close(p.stopCh)
	p.started = false
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.kv.Delete(ctx, p.key()); err != nil {
		return fmt.Errorf("stopped but failed to delete heartbeat: %w", err)
	}

	return nil
}

// IsStarted returns whether the publisher is currently running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

func (p *Publisher) publishLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := p.publish(ctx)
			cancel()

			if err != nil {
				p.logger.Warn("heartbeat publish failed", "worker_id", p.workerID, "error", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context) error {
	beat := Beat{
		WorkerID:  p.workerID,
		Hostname:  p.hostname,
		Timestamp: time.Now().UTC(),
		Status:    p.status(),
	}
	value, err := json.Marshal(beat)
	if err != nil {
		return err
	}

	_, err = p.kv.Put(ctx, p.key(), value)
	if p.metrics != nil {
		p.metrics.RecordHeartbeat(p.workerID, err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish heartbeat for %s: %w", p.workerID, err)
	}

	return nil
}

func (p *Publisher) key() string {
	return fmt.Sprintf("%s.%s", p.prefix, p.workerID)
}

// List returns the current beats of all live workers under prefix, sorted by key.
//
// Entries that fail to decode are skipped.
func List(ctx context.Context, kv jetstream.KeyValue, prefix string) ([]Beat, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	slices.Sort(keys)

	beats := make([]Beat, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix+".") {
			continue
		}
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read heartbeat %s: %w", key, err)
		}

		var beat Beat
		if err := json.Unmarshal(entry.Value(), &beat); err != nil {
			continue
		}
		beats = append(beats, beat)
	}

	return beats, nil
}
