// Package strategy provides built-in shard routing strategies for unit tasks.
//
// A shard strategy picks the queue shard (subject suffix) that carries each
// unit task, so separate worker groups can consume separate shards. The
// package includes two built-in strategies:
//
//   - ConsistentHash: Hash ring with virtual nodes keyed by session and sequence
//   - RoundRobin: Sequence number modulo shard count
//
// # Strategy Selection Guide
//
// ConsistentHash:
//   - Use when shards come and go (scaling worker groups)
//   - Adding a shard moves only about 1/N of future units
//   - Configuration: virtual nodes, hash seed
//
// RoundRobin:
//   - Use for a fixed shard set
//   - Guarantees an even spread of consecutive units
//
// Custom strategies can be implemented by satisfying the types.ShardStrategy interface.
package strategy
