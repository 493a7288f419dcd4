package engine

import "sort"

// OptimizeTopology runs one rebalancing pass: overloaded nodes shed
// assignments, under-connected nodes discover peers, and the stats snapshot
// is recomputed. Invoked on every heartbeat tick.
func (e *Engine) OptimizeTopology() {
	e.mu.Lock()
	defer e.mu.Unlock()

	average := e.averageLoadLocked()

	for _, id := range e.nodeOrder {
		n := e.nodes[id]
		if n.load > e.cfg.OverloadFactor*average {
			e.redistributeLocked(id)
		}
		if len(n.peers) < e.cfg.MinPeerCount {
			e.discoverPeersLocked(n)
		}
	}

	e.recomputeStatsLocked()
}

// averageLoadLocked is the mean load across the registry, defaulting to 1 for
// an empty registry so overload ratios stay defined.
func (e *Engine) averageLoadLocked() float64 {
	if len(e.nodes) == 0 {
		return 1
	}
	var total float64
	for _, n := range e.nodes {
		total += n.load
	}
	return total / float64(len(e.nodes))
}

// discoverPeersLocked connects a node to up to maxPeers-current other nodes in
// the same partition that still have peer capacity, preferring the least
// loaded. Edges are symmetric. No-op when no eligible peer exists.
func (e *Engine) discoverPeersLocked(n *node) {
	want := e.cfg.MaxPeers - len(n.peers)
	if want <= 0 {
		return
	}

	candidates := make([]*node, 0)
	for _, id := range e.nodeOrder {
		other := e.nodes[id]
		if other.id == n.id {
			continue
		}
		if other.partitionID != n.partitionID {
			continue
		}
		if _, already := n.peers[other.id]; already {
			continue
		}
		if len(other.peers) >= e.cfg.MaxPeers {
			continue
		}
		candidates = append(candidates, other)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].load < candidates[j].load
	})

	if len(candidates) > want {
		candidates = candidates[:want]
	}

	for _, peer := range candidates {
		n.peers[peer.id] = struct{}{}
		peer.peers[n.id] = struct{}{}
	}
}
