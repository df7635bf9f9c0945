package fleet

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

const DefaultShards = 32

// NodeState is the latest accepted report for one node.
// A published state is never mutated; upserts swap in a new one.
type NodeState struct {
	NodeID      string
	Metrics     model.MetricsBundle
	AgentTime   time.Time
	ReceiptTime time.Time
}

type shard struct {
	mu    sync.RWMutex
	nodes map[string]*NodeState
}

// Registry holds the latest state per node. Nodes are spread over
// independently locked shards so writers for different nodes rarely contend.
type Registry struct {
	shards []*shard
	now    func() time.Time
}

type RegistryOption func(*Registry)

// WithShards sets the number of lock stripes. Values below 1 fall back to one shard.
func WithShards(n int) RegistryOption {
	return func(r *Registry) {
		if n < 1 {
			n = 1
		}
		r.shards = make([]*shard, n)
	}
}

// WithClock replaces the receipt clock, mostly for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		shards: make([]*shard, DefaultShards),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i] = &shard{nodes: make(map[string]*NodeState)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	return r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

// Upsert replaces the state of id with a freshly stamped copy of bundle.
// It reports whether the node was seen for the first time.
func (r *Registry) Upsert(id string, bundle model.MetricsBundle, agentTime time.Time) bool {
	state := &NodeState{
		NodeID:    id,
		Metrics:   bundle.Clone(),
		AgentTime: agentTime,
	}

	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	state.ReceiptTime = r.now()
	prev, existed := s.nodes[id]
	if existed && state.ReceiptTime.Before(prev.ReceiptTime) {
		// receipt instants never go backwards for a node
		state.ReceiptTime = prev.ReceiptTime
	}
	s.nodes[id] = state
	return !existed
}

// Get returns a copy of the state for id.
func (r *Registry) Get(id string) (NodeState, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	state, ok := s.nodes[id]
	s.mu.RUnlock()
	if !ok {
		return NodeState{}, false
	}
	return state.copy(), true
}

// Len returns the number of known nodes.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.nodes)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot returns a point-in-time copy of every known node ordered by id.
// All shards are read-locked together, always in index order, so the result
// matches one serialization of the concurrent upserts.
func (r *Registry) Snapshot() []NodeState {
	for _, s := range r.shards {
		s.mu.RLock()
	}
	var published []*NodeState
	for _, s := range r.shards {
		for _, state := range s.nodes {
			published = append(published, state)
		}
	}
	for _, s := range r.shards {
		s.mu.RUnlock()
	}

	out := make([]NodeState, 0, len(published))
	for _, state := range published {
		out = append(out, state.copy())
	}
	slices.SortFunc(out, func(a, b NodeState) int {
		return cmp.Compare(a.NodeID, b.NodeID)
	})
	return out
}

func (s *NodeState) copy() NodeState {
	out := *s
	out.Metrics = s.Metrics.Clone()
	return out
}
