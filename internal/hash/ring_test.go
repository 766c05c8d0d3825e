package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRing(t *testing.T) {
	shards := []string{"0", "1", "2", "1"}
	ring := NewRing(shards, 100, 0)

	require.Equal(t, 300, ring.Size())
	require.Equal(t, []string{"0", "1", "2"}, ring.Nodes())
}

func TestRing_GetNode(t *testing.T) {
	t.Run("empty ring", func(t *testing.T) {
		ring := NewRing(nil, 100, 0)
		require.Empty(t, ring.GetNode("k"))
		require.Empty(t, ring.GetNodeForUnit("s", 1))
	})

	t.Run("consistent", func(t *testing.T) {
		ring := NewRing([]string{"a", "b"}, 150, 0)
		for _, key := range []string{"x", "y", "z"} {
			require.Equal(t, ring.GetNode(key), ring.GetNode(key))
		}
		require.Equal(t, ring.GetNodeForUnit("s", 9), ring.GetNodeForUnit("s", 9))
	})

	t.Run("distributes units across shards", func(t *testing.T) {
		shards := []string{"0", "1", "2"}
		ring := NewRing(shards, 150, 0)

		counts := make(map[string]int)
		for seq := range 3000 {
			counts[ring.GetNodeForUnit("session", seq)]++
		}

		for _, s := range shards {
			require.InDelta(t, 1000, counts[s], 300, "shard %s got %d units", s, counts[s])
		}
	})

	t.Run("seed changes placement", func(t *testing.T) {
		a := NewRing([]string{"0", "1", "2", "3"}, 150, 0)
		b := NewRing([]string{"0", "1", "2", "3"}, 150, 42)

		differs := false
		for i := range 100 {
			key := fmt.Sprintf("unit-%d", i)
			if a.GetNode(key) != b.GetNode(key) {
				differs = true
				break
			}
		}
		require.True(t, differs)
	})
}

func TestRing_MinimalMovement(t *testing.T) {
	before := NewRing([]string{"0", "1", "2"}, 150, 0)
	after := NewRing([]string{"0", "1", "2", "3"}, 150, 0)

	moved := 0
	for seq := range 1000 {
		from := before.GetNodeForUnit("s", seq)
		to := after.GetNodeForUnit("s", seq)
		if from != to {
			require.Equal(t, "3", to, "units only move to the new shard")
			moved++
		}
	}
	require.Less(t, moved, 450)
}

func BenchmarkRing_GetNodeForUnit(b *testing.B) {
	ring := NewRing([]string{"0", "1", "2", "3", "4", "5", "6", "7"}, 150, 0)
	seq := 0
	for b.Loop() {
		_ = ring.GetNodeForUnit("session", seq)
		seq++
	}
}
