// Package hash provides a consistent hash ring used to route units onto queue shards.
package hash

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"
)

// Ring implements a consistent hash ring with virtual nodes.
//
// The ring maps unit keys to shard names. Adding or removing a shard only
// moves the keys owned by that shard's virtual nodes.
type Ring struct {
	// nodes contains all virtual nodes on the ring, sorted by hash
	nodes []virtualNode

	// names holds the unique list of ring members
	names []string

	// seed for hash function (0 means unseeded)
	seed uint64
}

type virtualNode struct {
	hash uint64
	name string
}

// NewRing creates a new consistent hash ring.
//
// Parameters:
//   - names: Ring members (duplicates are ignored, order preserved)
//   - virtualNodes: Number of virtual nodes per member (higher = better distribution)
//   - seed: Seed for hash function (0 for unseeded)
//
// Returns:
//   - *Ring: Initialized hash ring
//
// Example:
//
//	ring := hash.NewRing([]string{"0", "1", "2"}, 150, 0)
//	shard := ring.GetNodeForUnit(sessionID, seq)
func NewRing(names []string, virtualNodes int, seed uint64) *Ring {
	ring := &Ring{
		nodes: make([]virtualNode, 0, len(names)*virtualNodes),
		names: make([]string, 0, len(names)),
		seed:  seed,
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		ring.names = append(ring.names, name)
		ring.addNode(name, virtualNodes)
	}

	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		if a.hash < b.hash {
			return -1
		}
		if a.hash > b.hash {
			return 1
		}

		return 0
	})

	return ring
}

// GetNode returns the member responsible for key, or "" for an empty ring.
func (r *Ring) GetNode(key string) string {
	if len(r.nodes) == 0 {
		return ""
	}

	return r.getNodeByHash(r.hash(key))
}

// GetNodeForUnit returns the member responsible for a unit of a session.
//
// The session ID is hashed first and the sequence number is folded in using
// the session hash as seed, so no intermediate key string is built.
func (r *Ring) GetNodeForUnit(sessionID string, seq int) string {
	if len(r.nodes) == 0 {
		return ""
	}

	var sb [8]byte
	binary.LittleEndian.PutUint64(sb[:], uint64(seq)) //nolint:gosec

	return r.getNodeByHash(xxh3.HashSeed(sb[:], r.hash(sessionID)))
}

// Nodes returns the unique members of the ring.
func (r *Ring) Nodes() []string {
	return append([]string(nil), r.names...)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

func (r *Ring) addNode(name string, virtualNodes int) {
	base := r.hash(name)
	for i := range virtualNodes {
		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		r.nodes = append(r.nodes, virtualNode{
			hash: xxh3.HashSeed(ib[:], base),
			name: name,
		})
	}
}

func (r *Ring) hash(key string) uint64 {
	if r.seed != 0 {
		return xxh3.HashStringSeed(key, r.seed)
	}

	return xxh3.HashString(key)
}

// getNodeByHash returns the first virtual node at or after target, wrapping around.
func (r *Ring) getNodeByHash(target uint64) string {
	idx, _ := slices.BinarySearchFunc(r.nodes, target, func(node virtualNode, t uint64) int {
		if node.hash < t {
			return -1
		}
		if node.hash > t {
			return 1
		}

		return 0
	})
	if idx >= len(r.nodes) {
		idx = 0
	}

	return r.nodes[idx].name
}
