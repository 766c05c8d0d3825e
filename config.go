package framepipe

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/framepipe/collector"
	"github.com/arloliu/framepipe/dispatch"
	"github.com/arloliu/framepipe/queue"
	"github.com/arloliu/framepipe/sink"
	"github.com/arloliu/framepipe/store"
	"github.com/arloliu/framepipe/worker"
)

// CollectorConfig controls how completed units are discovered in the result store.
type CollectorConfig struct {
	// Concurrency is the maximum number of units polled at the same time (W).
	Concurrency int `yaml:"concurrency"`

	// PollInterval is the delay between two store checks of the same unit (I).
	PollInterval time.Duration `yaml:"pollInterval"`

	// UnitTimeout is the wall-clock deadline for a unit, measured from the
	// moment its watcher starts (T). A unit that misses it resolves as a failure.
	UnitTimeout time.Duration `yaml:"unitTimeout"`
}

// DispatchConfig controls task submission retries.
type DispatchConfig struct {
	// MaxAttempts is the attempt ceiling per unit, including the first try.
	MaxAttempts int `yaml:"maxAttempts"`

	InitialBackoff    time.Duration `yaml:"initialBackoff"`
	MaxBackoff        time.Duration `yaml:"maxBackoff"`
	BackoffMultiplier float64       `yaml:"backoffMultiplier"`

	// Jitter is the fraction (0..1) of each delay that may be randomly shaved off.
	Jitter float64 `yaml:"jitter"`

	// SubmitTimeout bounds a single queue Submit call.
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
}

// StoreConfig configures the JetStream result store buckets.
type StoreConfig struct {
	ArtifactBucket string        `yaml:"artifactBucket"`
	MetadataBucket string        `yaml:"metadataBucket"`
	TTL            time.Duration `yaml:"ttl"`
}

// QueueConfig configures the JetStream task stream.
type QueueConfig struct {
	StreamName    string   `yaml:"streamName"`
	SubjectPrefix string   `yaml:"subjectPrefix"`
	Shards        []string `yaml:"shards"`

	// DuplicateWindow is how long the server remembers submitted unit keys.
	DuplicateWindow time.Duration `yaml:"duplicateWindow"`
}

// ProgressConfig configures the progress KV bucket.
type ProgressConfig struct {
	Bucket string        `yaml:"bucket"`
	TTL    time.Duration `yaml:"ttl"`

	// WriteTimeout bounds a single progress sink write.
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// WorkerConfig configures the reference worker runtime.
type WorkerConfig struct {
	ConsumerName string        `yaml:"consumerName"`
	MaxDeliver   int           `yaml:"maxDeliver"`
	AckWait      time.Duration `yaml:"ackWait"`
	RetryDelay   time.Duration `yaml:"retryDelay"`

	// WorkerIDPrefix is the prefix for stable worker IDs ("worker" produces "worker-0", "worker-1").
	WorkerIDPrefix string `yaml:"workerIdPrefix"`

	// WorkerIDMin and WorkerIDMax bound the stable ID pool (inclusive).
	WorkerIDMin int `yaml:"workerIdMin"`
	WorkerIDMax int `yaml:"workerIdMax"`

	// WorkerIDTTL is how long a worker ID claim remains valid in the key-value store.
	// Recommended: 3-5x HeartbeatInterval.
	WorkerIDTTL time.Duration `yaml:"workerIdTtl"`

	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatTTL      time.Duration `yaml:"heartbeatTtl"`

	StableIDBucket  string `yaml:"stableIdBucket"`
	HeartbeatBucket string `yaml:"heartbeatBucket"`
}

// Config is the configuration for a Pipeline and the reference worker.
//
// All duration fields accept standard Go duration strings like "100ms", "30s", "5m".
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Store     StoreConfig     `yaml:"store"`
	Queue     QueueConfig     `yaml:"queue"`
	Progress  ProgressConfig  `yaml:"progress"`
	Worker    WorkerConfig    `yaml:"worker"`

	// OperationTimeout bounds reading a unit's artifact when writing the ordered output.
	OperationTimeout time.Duration `yaml:"operationTimeout"`
}

// DefaultConfig returns a Config with production defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	dispatchDefaults := dispatch.DefaultConfig()

	return Config{
		Collector: CollectorConfig{
			Concurrency:  4,
			PollInterval: 100 * time.Millisecond,
			UnitTimeout:  300 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:       dispatchDefaults.MaxAttempts,
			InitialBackoff:    dispatchDefaults.InitialBackoff,
			MaxBackoff:        dispatchDefaults.MaxBackoff,
			BackoffMultiplier: dispatchDefaults.Multiplier,
			Jitter:            dispatchDefaults.Jitter,
			SubmitTimeout:     dispatchDefaults.SubmitTimeout,
		},
		Store: StoreConfig{
			ArtifactBucket: store.DefaultArtifactBucket,
			MetadataBucket: store.DefaultMetadataBucket,
			TTL:            time.Hour,
		},
		Queue: QueueConfig{
			StreamName:      queue.DefaultStreamName,
			SubjectPrefix:   queue.DefaultSubjectPrefix,
			Shards:          []string{queue.DefaultShard},
			DuplicateWindow: queue.DefaultDuplicateWindow,
		},
		Progress: ProgressConfig{
			Bucket:       sink.DefaultKVBucket,
			TTL:          sink.DefaultRedisTTL,
			WriteTimeout: 2 * time.Second,
		},
		Worker: WorkerConfig{
			ConsumerName:      worker.DefaultConsumerName,
			MaxDeliver:        worker.DefaultMaxDeliver,
			AckWait:           worker.DefaultAckWait,
			RetryDelay:        worker.DefaultRetryDelay,
			WorkerIDPrefix:    "worker",
			WorkerIDMin:       0,
			WorkerIDMax:       99,
			WorkerIDTTL:       30 * time.Second,
			HeartbeatInterval: 2 * time.Second,
			HeartbeatTTL:      6 * time.Second,
			StableIDBucket:    "framepipe-stableid",
			HeartbeatBucket:   "framepipe-heartbeat",
		},
		OperationTimeout: 10 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Collector.Concurrency == 0 {
		cfg.Collector.Concurrency = defaults.Collector.Concurrency
	}
	if cfg.Collector.PollInterval == 0 {
		cfg.Collector.PollInterval = defaults.Collector.PollInterval
	}
	if cfg.Collector.UnitTimeout == 0 {
		cfg.Collector.UnitTimeout = defaults.Collector.UnitTimeout
	}

	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = defaults.Dispatch.MaxAttempts
	}
	if cfg.Dispatch.InitialBackoff == 0 {
		cfg.Dispatch.InitialBackoff = defaults.Dispatch.InitialBackoff
	}
	if cfg.Dispatch.MaxBackoff == 0 {
		cfg.Dispatch.MaxBackoff = defaults.Dispatch.MaxBackoff
	}
	if cfg.Dispatch.BackoffMultiplier == 0 {
		cfg.Dispatch.BackoffMultiplier = defaults.Dispatch.BackoffMultiplier
	}
	if cfg.Dispatch.SubmitTimeout == 0 {
		cfg.Dispatch.SubmitTimeout = defaults.Dispatch.SubmitTimeout
	}
	// Note: Jitter of 0 is valid (deterministic backoff), so we don't apply default

	if cfg.Store.ArtifactBucket == "" {
		cfg.Store.ArtifactBucket = defaults.Store.ArtifactBucket
	}
	if cfg.Store.MetadataBucket == "" {
		cfg.Store.MetadataBucket = defaults.Store.MetadataBucket
	}
	// Note: Store TTL of 0 is valid (results never expire)

	if cfg.Queue.StreamName == "" {
		cfg.Queue.StreamName = defaults.Queue.StreamName
	}
	if cfg.Queue.SubjectPrefix == "" {
		cfg.Queue.SubjectPrefix = defaults.Queue.SubjectPrefix
	}
	if len(cfg.Queue.Shards) == 0 {
		cfg.Queue.Shards = defaults.Queue.Shards
	}
	if cfg.Queue.DuplicateWindow == 0 {
		cfg.Queue.DuplicateWindow = defaults.Queue.DuplicateWindow
	}

	if cfg.Progress.Bucket == "" {
		cfg.Progress.Bucket = defaults.Progress.Bucket
	}
	if cfg.Progress.TTL == 0 {
		cfg.Progress.TTL = defaults.Progress.TTL
	}
	if cfg.Progress.WriteTimeout == 0 {
		cfg.Progress.WriteTimeout = defaults.Progress.WriteTimeout
	}

	if cfg.Worker.ConsumerName == "" {
		cfg.Worker.ConsumerName = defaults.Worker.ConsumerName
	}
	if cfg.Worker.MaxDeliver == 0 {
		cfg.Worker.MaxDeliver = defaults.Worker.MaxDeliver
	}
	if cfg.Worker.AckWait == 0 {
		cfg.Worker.AckWait = defaults.Worker.AckWait
	}
	if cfg.Worker.RetryDelay == 0 {
		cfg.Worker.RetryDelay = defaults.Worker.RetryDelay
	}
	if cfg.Worker.WorkerIDPrefix == "" {
		cfg.Worker.WorkerIDPrefix = defaults.Worker.WorkerIDPrefix
	}
	if cfg.Worker.WorkerIDMax == 0 {
		cfg.Worker.WorkerIDMax = defaults.Worker.WorkerIDMax
	}
	if cfg.Worker.WorkerIDTTL == 0 {
		cfg.Worker.WorkerIDTTL = defaults.Worker.WorkerIDTTL
	}
	if cfg.Worker.HeartbeatInterval == 0 {
		cfg.Worker.HeartbeatInterval = defaults.Worker.HeartbeatInterval
	}
	if cfg.Worker.HeartbeatTTL == 0 {
		cfg.Worker.HeartbeatTTL = defaults.Worker.HeartbeatTTL
	}
	if cfg.Worker.StableIDBucket == "" {
		cfg.Worker.StableIDBucket = defaults.Worker.StableIDBucket
	}
	if cfg.Worker.HeartbeatBucket == "" {
		cfg.Worker.HeartbeatBucket = defaults.Worker.HeartbeatBucket
	}

	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - Collector.Concurrency >= 1
//   - Collector.PollInterval > 0 and <= Collector.UnitTimeout
//   - Dispatch.MaxAttempts >= 1
//   - Dispatch.InitialBackoff <= Dispatch.MaxBackoff
//   - Dispatch.BackoffMultiplier >= 1
//   - 0 <= Dispatch.Jitter <= 1
//   - Worker.WorkerIDMin <= Worker.WorkerIDMax
//   - Worker.HeartbeatTTL >= 2 * Worker.HeartbeatInterval
//   - Worker.WorkerIDTTL >= 3 * Worker.HeartbeatInterval
//
// Returns:
//   - error: Error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.Collector.Concurrency < 1 {
		return fmt.Errorf("%w: Collector.Concurrency must be >= 1, got %d", ErrInvalidConfig, cfg.Collector.Concurrency)
	}
	if cfg.Collector.PollInterval <= 0 {
		return fmt.Errorf("%w: Collector.PollInterval must be > 0, got %v", ErrInvalidConfig, cfg.Collector.PollInterval)
	}
	if cfg.Collector.UnitTimeout < cfg.Collector.PollInterval {
		return fmt.Errorf(
			"%w: Collector.UnitTimeout (%v) must be >= Collector.PollInterval (%v)",
			ErrInvalidConfig, cfg.Collector.UnitTimeout, cfg.Collector.PollInterval,
		)
	}

	if cfg.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("%w: Dispatch.MaxAttempts must be >= 1, got %d", ErrInvalidConfig, cfg.Dispatch.MaxAttempts)
	}
	if cfg.Dispatch.InitialBackoff > cfg.Dispatch.MaxBackoff {
		return fmt.Errorf(
			"%w: Dispatch.InitialBackoff (%v) must be <= Dispatch.MaxBackoff (%v)",
			ErrInvalidConfig, cfg.Dispatch.InitialBackoff, cfg.Dispatch.MaxBackoff,
		)
	}
	if cfg.Dispatch.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: Dispatch.BackoffMultiplier must be >= 1, got %v", ErrInvalidConfig, cfg.Dispatch.BackoffMultiplier)
	}
	if cfg.Dispatch.Jitter < 0 || cfg.Dispatch.Jitter > 1 {
		return fmt.Errorf("%w: Dispatch.Jitter must be within [0, 1], got %v", ErrInvalidConfig, cfg.Dispatch.Jitter)
	}

	if cfg.Worker.WorkerIDMin > cfg.Worker.WorkerIDMax {
		return fmt.Errorf(
			"%w: Worker.WorkerIDMin (%d) must be <= Worker.WorkerIDMax (%d)",
			ErrInvalidConfig, cfg.Worker.WorkerIDMin, cfg.Worker.WorkerIDMax,
		)
	}
	if cfg.Worker.HeartbeatTTL < 2*cfg.Worker.HeartbeatInterval {
		return fmt.Errorf(
			"%w: Worker.HeartbeatTTL (%v) must be >= 2*Worker.HeartbeatInterval (%v) to allow one missed heartbeat",
			ErrInvalidConfig, cfg.Worker.HeartbeatTTL, cfg.Worker.HeartbeatInterval,
		)
	}
	if cfg.Worker.WorkerIDTTL < 3*cfg.Worker.HeartbeatInterval {
		return fmt.Errorf(
			"%w: Worker.WorkerIDTTL (%v) must be >= 3*Worker.HeartbeatInterval (%v) for stable ID renewal",
			ErrInvalidConfig, cfg.Worker.WorkerIDTTL, cfg.Worker.HeartbeatInterval,
		)
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are valid but unusual.
//
// This is called after Validate() in NewPipeline() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Collector.UnitTimeout < 10*cfg.Collector.PollInterval {
		logger.Warn(
			"UnitTimeout allows fewer than 10 polls per unit",
			"unitTimeout", cfg.Collector.UnitTimeout,
			"pollInterval", cfg.Collector.PollInterval,
		)
	}

	if cfg.Collector.PollInterval < 10*time.Millisecond {
		logger.Warn(
			"PollInterval is very short, may overload the result store",
			"pollInterval", cfg.Collector.PollInterval,
			"recommended", "50ms or higher",
		)
	}

	if cfg.Collector.Concurrency > 256 {
		logger.Warn(
			"Collector concurrency is very high",
			"concurrency", cfg.Collector.Concurrency,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := framepipe.TestConfig()
//	cfg.Collector.Concurrency = 3
//	p, err := framepipe.NewPipeline(cfg, queue, store)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Collector.PollInterval = 10 * time.Millisecond
	cfg.Collector.UnitTimeout = 2 * time.Second
	cfg.Dispatch.InitialBackoff = time.Millisecond
	cfg.Dispatch.MaxBackoff = 10 * time.Millisecond
	cfg.Dispatch.SubmitTimeout = time.Second
	cfg.Worker.RetryDelay = 10 * time.Millisecond
	cfg.Worker.HeartbeatInterval = 500 * time.Millisecond
	cfg.Worker.HeartbeatTTL = 1500 * time.Millisecond
	cfg.Worker.WorkerIDTTL = 5 * time.Second

	return cfg
}

// LoadConfig reads a YAML configuration file, applies defaults and validates it.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Loaded configuration
//   - error: Read, parse, or validation error
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	return ParseConfig(raw)
}

// ParseConfig parses YAML configuration bytes, applies defaults and validates the result.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// CollectorSettings converts the collector section for collector.New.
func (cfg *Config) CollectorSettings() collector.Config {
	return collector.Config{
		Concurrency:  cfg.Collector.Concurrency,
		PollInterval: cfg.Collector.PollInterval,
		UnitTimeout:  cfg.Collector.UnitTimeout,
	}
}

// DispatchSettings converts the dispatch section for dispatch.New.
func (cfg *Config) DispatchSettings() dispatch.Config {
	return dispatch.Config{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		InitialBackoff: cfg.Dispatch.InitialBackoff,
		MaxBackoff:     cfg.Dispatch.MaxBackoff,
		Multiplier:     cfg.Dispatch.BackoffMultiplier,
		Jitter:         cfg.Dispatch.Jitter,
		SubmitTimeout:  cfg.Dispatch.SubmitTimeout,
	}
}

// QueueSettings converts the queue section for queue.OpenJetStream.
func (cfg *Config) QueueSettings() queue.Config {
	return queue.Config{
		StreamName:      cfg.Queue.StreamName,
		SubjectPrefix:   cfg.Queue.SubjectPrefix,
		Shards:          cfg.Queue.Shards,
		DuplicateWindow: cfg.Queue.DuplicateWindow,
	}
}

// StoreSettings converts the store section for store.OpenJetStream.
func (cfg *Config) StoreSettings() store.JetStreamConfig {
	return store.JetStreamConfig{
		ArtifactBucket: cfg.Store.ArtifactBucket,
		MetadataBucket: cfg.Store.MetadataBucket,
		TTL:            cfg.Store.TTL,
	}
}

// ProgressSettings converts the progress section for sink.OpenKV.
func (cfg *Config) ProgressSettings() sink.KVConfig {
	return sink.KVConfig{
		Bucket: cfg.Progress.Bucket,
		TTL:    cfg.Progress.TTL,
	}
}

// WorkerSettings converts the worker and queue sections for worker.New.
func (cfg *Config) WorkerSettings() worker.Config {
	return worker.Config{
		StreamName:        cfg.Queue.StreamName,
		SubjectPrefix:     cfg.Queue.SubjectPrefix,
		Shards:            cfg.Queue.Shards,
		ConsumerName:      cfg.Worker.ConsumerName,
		MaxDeliver:        cfg.Worker.MaxDeliver,
		AckWait:           cfg.Worker.AckWait,
		RetryDelay:        cfg.Worker.RetryDelay,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}
}
