package routing

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/calmisko/gatepipe/internal/core"
)

// Load balancing algorithms.
const (
	BalanceRoundRobin         = "round_robin"
	BalanceWeightedRoundRobin = "weighted_round_robin"
	BalanceLeastConnections   = "least_connections"
	BalanceRandom             = "random"
	BalanceIPHash             = "ip_hash"
	BalanceHealthAware        = "health_aware"
)

// Balancer picks one upstream from the eligible candidates. Pick
// returns nil only for an empty candidate list.
type Balancer interface {
	Pick(candidates []*Upstream, req *core.Request) *Upstream
	Name() string
}

// NewBalancer creates the balancer for the given algorithm. An empty
// algorithm selects round robin.
func NewBalancer(algorithm string) (Balancer, error) {
	switch algorithm {
	case "", BalanceRoundRobin:
		return &roundRobinBalancer{}, nil
	case BalanceWeightedRoundRobin:
		return &weightedRoundRobinBalancer{}, nil
	case BalanceLeastConnections:
		return &leastConnectionsBalancer{}, nil
	case BalanceRandom:
		return &randomBalancer{}, nil
	case BalanceIPHash:
		return &ipHashBalancer{}, nil
	case BalanceHealthAware:
		return &healthAwareBalancer{}, nil
	default:
		return nil, fmt.Errorf("unknown load balancing algorithm %q", algorithm)
	}
}

// roundRobinBalancer cycles through candidates with a monotonically
// increasing counter.
type roundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *roundRobinBalancer) Pick(candidates []*Upstream, _ *core.Request) *Upstream {
	if len(candidates) == 0 {
		return nil
	}
	idx := b.counter.Add(1) - 1
	return candidates[idx%uint64(len(candidates))]
}

func (b *roundRobinBalancer) Name() string { return BalanceRoundRobin }

// weightedRoundRobinBalancer cycles a counter over the total weight
// and walks cumulative weights to find the owner of the tick.
type weightedRoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *weightedRoundRobinBalancer) Pick(candidates []*Upstream, _ *core.Request) *Upstream {
	if len(candidates) == 0 {
		return nil
	}

	total := 0
	for _, u := range candidates {
		total += u.Weight
	}

	tick := int((b.counter.Add(1) - 1) % uint64(total))
	for _, u := range candidates {
		tick -= u.Weight
		if tick < 0 {
			return u
		}
	}
	return candidates[len(candidates)-1]
}

func (b *weightedRoundRobinBalancer) Name() string { return BalanceWeightedRoundRobin }

// leastConnectionsBalancer picks the candidate with the fewest
// in-flight calls; the earliest candidate wins ties.
type leastConnectionsBalancer struct{}

func (b *leastConnectionsBalancer) Pick(candidates []*Upstream, _ *core.Request) *Upstream {
	var selected *Upstream
	minConns := int64(-1)

	for _, u := range candidates {
		conns := u.ActiveConns()
		if minConns < 0 || conns < minConns {
			minConns = conns
			selected = u
		}
	}
	return selected
}

func (b *leastConnectionsBalancer) Name() string { return BalanceLeastConnections }

// randomBalancer picks uniformly at random.
type randomBalancer struct{}

func (b *randomBalancer) Pick(candidates []*Upstream, _ *core.Request) *Upstream {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[secureRandomInt(len(candidates))]
}

func (b *randomBalancer) Name() string { return BalanceRandom }

// ipHashBalancer hashes the client IP so a client sticks to one
// upstream for as long as the candidate set is stable.
type ipHashBalancer struct{}

func (b *ipHashBalancer) Pick(candidates []*Upstream, req *core.Request) *Upstream {
	if len(candidates) == 0 {
		return nil
	}

	clientIP := ""
	if req != nil {
		clientIP = req.ClientIP
	}
	return candidates[xxhash.Sum64String(clientIP)%uint64(len(candidates))]
}

func (b *ipHashBalancer) Name() string { return BalanceIPHash }

// healthAwareBalancer prefers upstreams with no latency samples yet,
// then the lowest rolling average latency.
type healthAwareBalancer struct{}

func (b *healthAwareBalancer) Pick(candidates []*Upstream, _ *core.Request) *Upstream {
	var selected *Upstream
	var selectedLatency int64 = -1

	for _, u := range candidates {
		if u.Samples() == 0 {
			return u
		}
		latency := int64(u.AvgLatency())
		if selectedLatency < 0 || latency < selectedLatency {
			selectedLatency = latency
			selected = u
		}
	}
	return selected
}

func (b *healthAwareBalancer) Name() string { return BalanceHealthAware }

// secureRandomInt returns a random int in [0, n).
func secureRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int(binary.LittleEndian.Uint64(buf[:]) % uint64(n))
}
