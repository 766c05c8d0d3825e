package strategy

import (
	"github.com/arloliu/framepipe/types"
)

// RoundRobin routes consecutive units to consecutive shards.
type RoundRobin struct{}

var _ types.ShardStrategy = (*RoundRobin)(nil)

// NewRoundRobin creates a new round-robin strategy.
//
// The strategy is stateless: unit seq goes to shards[seq % len(shards)], so
// retried submissions of a unit always land on the same shard.
//
// Returns:
//   - *RoundRobin: Initialized round-robin strategy
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Shard returns shards[task.Seq % len(shards)].
func (rr *RoundRobin) Shard(task types.UnitTask, shards []string) (string, error) {
	if len(shards) == 0 {
		return "", ErrNoShards
	}

	idx := task.Seq % len(shards)
	if idx < 0 {
		idx += len(shards)
	}

	return shards[idx], nil
}
