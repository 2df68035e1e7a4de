package sessionize

import (
	"github.com/spaolacci/murmur3"
)

// Router assigns users to shards. Session identity never crosses users, so
// any user-keyed split yields independent work units.
type Router struct {
	shards uint32
}

// NewRouter creates a router over n shards (minimum 1).
func NewRouter(n int) *Router {
	if n < 1 {
		n = 1
	}
	return &Router{shards: uint32(n)}
}

// Shards returns the shard count.
func (r *Router) Shards() int {
	return int(r.shards)
}

// Shard returns the shard for a user id using a murmur3 hash.
func (r *Router) Shard(userID string) int {
	if r.shards == 1 {
		return 0
	}
	return int(murmur3.Sum32([]byte(userID)) % r.shards)
}

// Partition groups row indices by shard. Indices within a shard stay in
// ascending order.
func (r *Router) Partition(userIDs func(i int) string, n int) [][]int {
	parts := make([][]int, r.shards)
	for i := 0; i < n; i++ {
		s := r.Shard(userIDs(i))
		parts[s] = append(parts[s], i)
	}
	return parts
}
