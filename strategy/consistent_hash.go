package strategy

import (
	"slices"
	"sync"

	"github.com/arloliu/framepipe/internal/hash"
	"github.com/arloliu/framepipe/types"
)

// ConsistentHash implements consistent hashing with virtual nodes.
type ConsistentHash struct {
	virtualNodes int
	hashSeed     uint64

	mu     sync.Mutex
	shards []string
	ring   *hash.Ring
}

var _ types.ShardStrategy = (*ConsistentHash)(nil)

// ConsistentHashOption configures a ConsistentHash strategy.
type ConsistentHashOption func(*ConsistentHash)

// NewConsistentHash creates a new consistent hash strategy.
//
// The strategy places shards on a hash ring with virtual nodes and routes
// each unit to the nearest clockwise shard. The ring is rebuilt only when the
// shard list changes.
//
// Parameters:
//   - opts: Optional configuration (WithVirtualNodes, WithHashSeed)
//
// Returns:
//   - *ConsistentHash: Initialized consistent hash strategy
//
// Example:
//
//	q, err := queue.OpenJetStream(ctx, js, cfg,
//	    queue.WithStrategy(strategy.NewConsistentHash(strategy.WithVirtualNodes(300))),
//	)
func NewConsistentHash(opts ...ConsistentHashOption) *ConsistentHash {
	ch := &ConsistentHash{
		virtualNodes: 150, // default
	}

	for _, opt := range opts {
		opt(ch)
	}

	return ch
}

// WithVirtualNodes sets the number of virtual nodes per shard.
//
// Higher values provide better distribution but increase memory usage.
// Recommended range: 100-300 (default: 150).
func WithVirtualNodes(nodes int) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.virtualNodes = nodes
	}
}

// WithHashSeed sets a custom hash seed.
func WithHashSeed(seed uint64) ConsistentHashOption {
	return func(ch *ConsistentHash) {
		ch.hashSeed = seed
	}
}

// Shard routes a task to the shard owning its position on the ring.
//
// Parameters:
//   - task: Task being submitted; session ID and sequence number form the key
//   - shards: Available shard names
//
// Returns:
//   - string: Selected shard
//   - error: ErrNoShards when shards is empty
func (ch *ConsistentHash) Shard(task types.UnitTask, shards []string) (string, error) {
	if len(shards) == 0 {
		return "", ErrNoShards
	}
	if len(shards) == 1 {
		return shards[0], nil
	}

	shard := ch.ringFor(shards).GetNodeForUnit(task.SessionID, task.Seq)
	if shard == "" {
		return "", ErrNoShards
	}

	return shard, nil
}

func (ch *ConsistentHash) ringFor(shards []string) *hash.Ring {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.ring == nil || !slices.Equal(ch.shards, shards) {
		ch.shards = slices.Clone(shards)
		ch.ring = hash.NewRing(ch.shards, ch.virtualNodes, ch.hashSeed)
	}

	return ch.ring
}
