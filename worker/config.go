package worker

import (
	"time"

	"github.com/arloliu/framepipe/queue"
)

// Default configuration values for Worker.
const (
	// DefaultConsumerName is the durable consumer shared by all workers of a shard group.
	DefaultConsumerName = "framepipe-workers"

	// DefaultMaxDeliver is the default maximum delivery attempts per task.
	DefaultMaxDeliver = 3

	// DefaultAckWait is the default duration to wait for acknowledgment.
	DefaultAckWait = 30 * time.Second

	// DefaultRetryDelay is the base redelivery delay after a failed attempt.
	DefaultRetryDelay = time.Second

	// DefaultFetchTimeout is the default maximum duration to wait for messages.
	DefaultFetchTimeout = 5 * time.Second

	// DefaultRetryBackoff is the delay before recreating a failed message iterator.
	DefaultRetryBackoff = 100 * time.Millisecond

	// DefaultInactiveThreshold is the default inactive consumer cleanup threshold.
	DefaultInactiveThreshold = 24 * time.Hour
)

// Config configures a Worker.
type Config struct {
	// StreamName and SubjectPrefix must match the queue configuration.
	StreamName    string
	SubjectPrefix string

	// Shards this worker consumes. Empty means the queue default shard.
	Shards []string

	// ConsumerName is the durable consumer name. Workers sharing it share the work.
	ConsumerName string

	MaxDeliver        int
	AckWait           time.Duration
	RetryDelay        time.Duration
	FetchTimeout      time.Duration
	RetryBackoff      time.Duration
	InactiveThreshold time.Duration

	// HeartbeatInterval is the liveness publish period when heartbeats are enabled.
	HeartbeatInterval time.Duration
}

// applyDefaults fills unset optional fields with project defaults.
func (cfg *Config) applyDefaults() {
	q := queue.Config{StreamName: cfg.StreamName, SubjectPrefix: cfg.SubjectPrefix, Shards: cfg.Shards}
	q.SetDefaults()
	cfg.StreamName = q.StreamName
	cfg.SubjectPrefix = q.SubjectPrefix
	cfg.Shards = q.Shards

	if cfg.ConsumerName == "" {
		cfg.ConsumerName = DefaultConsumerName
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = DefaultMaxDeliver
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = DefaultAckWait
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.InactiveThreshold <= 0 {
		cfg.InactiveThreshold = DefaultInactiveThreshold
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 2 * time.Second
	}
}

func (cfg *Config) subjects() []string {
	q := queue.Config{SubjectPrefix: cfg.SubjectPrefix}
	subjects := make([]string, len(cfg.Shards))
	for i, shard := range cfg.Shards {
		subjects[i] = q.Subject(shard)
	}

	return subjects
}
