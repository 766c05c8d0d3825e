package types

// ShardStrategy routes unit tasks onto queue shards.
//
// Strategies implement different routing algorithms:
//   - ConsistentHash: Hash ring with virtual nodes keyed by session and sequence
//   - RoundRobin: Sequence number modulo shard count
//   - Custom: User-defined routing
//
// Strategy implementations should:
//   - Be deterministic (same input → same output)
//   - Run quickly (called once per submitted unit)
//   - Be safe for concurrent use
type ShardStrategy interface {
	// Shard returns the shard that should carry the task.
	//
	// Parameters:
	//   - task: Task being submitted
	//   - shards: Available shard names (non-empty)
	//
	// Returns:
	//   - string: Selected shard name
	//   - error: Routing error (e.g., no shards)
	Shard(task UnitTask, shards []string) (string, error)
}
