package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/framepipe/internal/kvutil"
	"github.com/arloliu/framepipe/internal/logging"
	"github.com/arloliu/framepipe/strategy"
	"github.com/arloliu/framepipe/types"
)

// Defaults for Config.
const (
	DefaultStreamName      = "FRAMEPIPE_UNITS"
	DefaultSubjectPrefix   = "framepipe.units"
	DefaultShard           = "default"
	DefaultDuplicateWindow = 2 * time.Minute
)

// Config describes the unit stream.
type Config struct {
	// StreamName is the JetStream stream name.
	StreamName string

	// SubjectPrefix is the subject root; tasks go to "<prefix>.<shard>".
	SubjectPrefix string

	// Shards lists the shard names. Empty means a single DefaultShard.
	Shards []string

	// DuplicateWindow is how long the server remembers message IDs.
	DuplicateWindow time.Duration

	// MaxAge drops tasks nobody picked up (0 = unlimited).
	MaxAge time.Duration
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if len(c.Shards) == 0 {
		c.Shards = []string{DefaultShard}
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = DefaultDuplicateWindow
	}
}

// Subject returns the subject of a shard.
func (c Config) Subject(shard string) string {
	return c.SubjectPrefix + "." + shard
}

// Option configures a JetStream queue.
type Option func(*JetStream)

// WithStrategy sets the shard strategy (default: consistent hash).
func WithStrategy(s types.ShardStrategy) Option {
	return func(q *JetStream) {
		q.strategy = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(q *JetStream) {
		q.logger = logger
	}
}

// JetStream is a TaskQueue publishing to a work-queue stream.
type JetStream struct {
	js       jetstream.JetStream
	cfg      Config
	strategy types.ShardStrategy
	logger   types.Logger
}

var _ types.TaskQueue = (*JetStream)(nil)

// OpenJetStream creates or opens the unit stream.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - cfg: Stream configuration (zero fields use defaults)
//   - opts: Optional configuration
//
// Returns:
//   - *JetStream: Queue bound to the stream
//   - error: Stream creation error
//
// Example:
//
//	q, err := queue.OpenJetStream(ctx, js, queue.Config{Shards: []string{"a", "b"}},
//	    queue.WithStrategy(strategy.NewRoundRobin()))
func OpenJetStream(ctx context.Context, js jetstream.JetStream, cfg Config, opts ...Option) (*JetStream, error) {
	cfg.SetDefaults()

	q := &JetStream{
		js:       js,
		cfg:      cfg,
		strategy: strategy.NewConsistentHash(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}

	_, err := kvutil.EnsureStreamWithRetry(ctx, js, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "framepipe unit tasks",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		Duplicates:  cfg.DuplicateWindow,
		MaxAge:      cfg.MaxAge,
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("open unit stream: %w", err)
	}

	return q, nil
}

// Config returns the effective configuration.
func (q *JetStream) Config() Config {
	cfg := q.cfg
	cfg.Shards = slices.Clone(q.cfg.Shards)

	return cfg
}

// Submit publishes one task to its shard subject.
func (q *JetStream) Submit(ctx context.Context, task types.UnitTask) error {
	shard, err := q.strategy.Shard(task, q.cfg.Shards)
	if err != nil {
		return fmt.Errorf("route unit %d: %w", task.Seq, err)
	}

	data, err := EncodeTask(task)
	if err != nil {
		return err
	}

	ack, err := q.js.Publish(ctx, q.cfg.Subject(shard), data, jetstream.WithMsgID(task.Key()))
	if err != nil {
		return fmt.Errorf("publish unit %d: %w", task.Seq, err)
	}
	if ack.Duplicate {
		q.logger.Debug("duplicate task dropped by server", "session_id", task.SessionID, "seq", task.Seq)
	}

	return nil
}

// EncodeTask serializes a task for the wire.
func EncodeTask(task types.UnitTask) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode unit %d: %w", task.Seq, err)
	}

	return data, nil
}

// ErrMalformedTask indicates a message that is not a valid unit task.
var ErrMalformedTask = errors.New("malformed unit task")

// DecodeTask parses a task published by Submit.
func DecodeTask(data []byte) (types.UnitTask, error) {
	var task types.UnitTask
	if err := json.Unmarshal(data, &task); err != nil {
		return types.UnitTask{}, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	if task.SessionID == "" || task.Seq < 0 {
		return types.UnitTask{}, fmt.Errorf("%w: missing session or sequence", ErrMalformedTask)
	}

	return task, nil
}
